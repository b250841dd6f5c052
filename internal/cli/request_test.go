package cli

import (
	"testing"
	"time"
)

func TestRequestFlags(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	f := requestFlags{timeframe: "1w", from: "2024-01-01", to: "2024-06-01T12:00:00Z"}
	req, err := f.request(now)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if req.Timeframe != "1w" || !req.From.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) ||
		!req.To.Equal(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected request %+v", req)
	}

	preset := requestFlags{preset: "3m", reference: true}
	req, err = preset.request(now)
	if err != nil {
		t.Fatalf("preset request: %v", err)
	}
	if !req.From.Equal(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)) || !req.To.IsZero() || !req.WithReference {
		t.Fatalf("unexpected preset request %+v", req)
	}

	bad := []requestFlags{
		{preset: "1y", from: "2024-01-01"},
		{preset: "1y", period: "6mo"},
		{preset: "7y"},
		{from: "01/02/2024"},
		{from: "2024-05-01", to: "2024-04-01"},
	}
	for _, b := range bad {
		if _, err := b.request(now); err == nil {
			t.Fatalf("expected error for %+v", b)
		}
	}
}
