package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Chainlink AggregatorV3Interface subset.
const aggregatorABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`

var aggregatorABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// OracleOptions parameterise the on-chain price feed reader.
type OracleOptions struct {
	RPCURL      string
	FeedAddress string
	Timeout     time.Duration
}

// Oracle reads a Chainlink price feed over Ethereum RPC.
type Oracle struct {
	opts      OracleOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex
	decimals  *uint8
}

// NewOracle builds a price feed reader.
func NewOracle(opts OracleOptions, logger zerolog.Logger) *Oracle {
	return &Oracle{opts: opts, logger: logger.With().Str("component", "oracle_fetcher").Logger()}
}

// Configured reports whether an RPC endpoint and feed are set.
func (o *Oracle) Configured() bool {
	return o.opts.RPCURL != "" && o.opts.FeedAddress != ""
}

// FetchReference reads the latest round of the feed.
func (o *Oracle) FetchReference(ctx context.Context) (ReferencePrice, error) {
	if o.opts.RPCURL == "" {
		return ReferencePrice{}, errors.New("ethereum rpc url not configured")
	}
	if o.opts.FeedAddress == "" {
		return ReferencePrice{}, errors.New("price feed address not configured")
	}
	if !common.IsHexAddress(o.opts.FeedAddress) {
		return ReferencePrice{}, fmt.Errorf("invalid price feed address %q", o.opts.FeedAddress)
	}

	timeout := o.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := o.getClient(ctx)
	if err != nil {
		return ReferencePrice{}, err
	}

	feed := common.HexToAddress(o.opts.FeedAddress)
	decimals, err := o.feedDecimals(ctx, client, feed)
	if err != nil {
		return ReferencePrice{}, err
	}

	res, err := o.call(ctx, client, feed, "latestRoundData")
	if err != nil {
		return ReferencePrice{}, err
	}
	ref, err := decodeLatestRound(res, decimals)
	if err != nil {
		return ReferencePrice{}, err
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return ReferencePrice{}, err
	}
	ref.Block = blockNumber

	o.logger.Debug().
		Str("price", ref.Price.String()).
		Str("round", ref.RoundID).
		Uint64("block", blockNumber).
		Msg("read price feed")

	return ref, nil
}

func (o *Oracle) feedDecimals(ctx context.Context, client *ethclient.Client, feed common.Address) (uint8, error) {
	o.clientMux.Lock()
	cached := o.decimals
	o.clientMux.Unlock()
	if cached != nil {
		return *cached, nil
	}

	res, err := o.call(ctx, client, feed, "decimals")
	if err != nil {
		return 0, err
	}
	outputs, err := aggregatorABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	d, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	o.clientMux.Lock()
	o.decimals = &d
	o.clientMux.Unlock()
	return d, nil
}

func (o *Oracle) call(ctx context.Context, client *ethclient.Client, feed common.Address, method string) ([]byte, error) {
	payload, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	return res, nil
}

func decodeLatestRound(res []byte, decimals uint8) (ReferencePrice, error) {
	outputs, err := aggregatorABI.Unpack("latestRoundData", res)
	if err != nil {
		return ReferencePrice{}, err
	}
	if len(outputs) != 5 {
		return ReferencePrice{}, errors.New("unexpected latestRoundData response")
	}

	roundID, ok := outputs[0].(*big.Int)
	if !ok {
		return ReferencePrice{}, errors.New("failed to decode round id")
	}
	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return ReferencePrice{}, errors.New("failed to decode answer")
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return ReferencePrice{}, errors.New("failed to decode updatedAt")
	}
	if answer.Sign() <= 0 {
		return ReferencePrice{}, fmt.Errorf("feed returned non-positive answer %s", answer)
	}

	return ReferencePrice{
		Price:     decimal.NewFromBigInt(answer, -int32(decimals)),
		RoundID:   roundID.String(),
		UpdatedAt: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

func (o *Oracle) getClient(ctx context.Context) (*ethclient.Client, error) {
	o.clientMux.Lock()
	defer o.clientMux.Unlock()

	if o.client != nil {
		return o.client, nil
	}

	client, err := ethclient.DialContext(ctx, o.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	o.client = client
	return client, nil
}

var _ ReferencePriceFetcher = (*Oracle)(nil)
