package fetcher

import (
	"context"
	"math/big"
	"testing"
	"time"
)

func TestOracleMissingConfig(t *testing.T) {
	o := NewOracle(OracleOptions{}, noopLogger())
	if o.Configured() {
		t.Fatal("empty options should not report configured")
	}
	if _, err := o.FetchReference(context.Background()); err == nil {
		t.Fatal("missing rpc url should fail")
	}

	o = NewOracle(OracleOptions{RPCURL: "http://localhost"}, noopLogger())
	if _, err := o.FetchReference(context.Background()); err == nil {
		t.Fatal("missing feed address should fail")
	}

	o = NewOracle(OracleOptions{RPCURL: "http://localhost", FeedAddress: "not-an-address"}, noopLogger())
	if _, err := o.FetchReference(context.Background()); err == nil {
		t.Fatal("invalid feed address should fail")
	}
}

func TestDecodeLatestRound(t *testing.T) {
	outputs := aggregatorABI.Methods["latestRoundData"].Outputs
	updated := time.Date(2024, 4, 20, 0, 9, 0, 0, time.UTC)
	round, _ := new(big.Int).SetString("110680464442257320247", 10)
	payload, err := outputs.Pack(
		round,
		big.NewInt(6_432_150_000_000),
		big.NewInt(updated.Unix()-30),
		big.NewInt(updated.Unix()),
		round,
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	ref, err := decodeLatestRound(payload, 8)
	if err != nil {
		t.Fatalf("decodeLatestRound: %v", err)
	}
	if ref.Price.String() != "64321.5" {
		t.Fatalf("unexpected price %s", ref.Price)
	}
	if !ref.UpdatedAt.Equal(updated) {
		t.Fatalf("unexpected updatedAt %s", ref.UpdatedAt)
	}
	if ref.RoundID != "110680464442257320247" {
		t.Fatalf("unexpected round %s", ref.RoundID)
	}
}

func TestDecodeLatestRoundRejectsNonPositive(t *testing.T) {
	outputs := aggregatorABI.Methods["latestRoundData"].Outputs
	payload, err := outputs.Pack(big.NewInt(1), big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(1))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if _, err := decodeLatestRound(payload, 8); err == nil {
		t.Fatal("zero answer should fail")
	}
}
