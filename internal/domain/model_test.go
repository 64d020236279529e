package domain

import (
	"errors"
	"math/big"
	"testing"
)

// --- helpers ---

func rec(from, to string, fromAmt, toAmt int64) *SwapRecord {
	return &SwapRecord{
		BlockNumber: 1200,
		TxHash:      "0xAB",
		LogIndex:    3,
		Pool:        Address("0xpool"),
		FromToken:   Address(from),
		ToToken:     Address(to),
		FromAmount:  big.NewInt(fromAmt),
		ToAmount:    big.NewInt(toAmt),
	}
}

// --- tests ---

func TestNormalizeAddress_Lowercases(t *testing.T) {
	t.Parallel()

	got := NormalizeAddress("0xC02AAA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	want := Address("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestValidAddress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in string
		ok bool
	}{
		{"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", true},
		{"0xC02AAA39b223FE8D0A0e5C4F27eAD9083C756Cc2", true},
		{"c02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", false},   // no prefix
		{"0xc02aaa39b223fe8d0a0e5c4f27ead9083c756c", false},   // short
		{"0xzz2aaa39b223fe8d0a0e5c4f27ead9083c756cc2", false}, // non-hex
		{"", false},
	}
	for _, c := range cases {
		if got := ValidAddress(c.in); got != c.ok {
			t.Fatalf("ValidAddress(%q)=%v, want %v", c.in, got, c.ok)
		}
	}
}

func TestSwapRecord_Ratio(t *testing.T) {
	t.Parallel()

	r := rec("0xaaa", "0xbbb", 2, 5)
	ratio, err := r.Ratio()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ratio != 2.5 {
		t.Fatalf("expected ratio 2.5, got %v", ratio)
	}
}

func TestSwapRecord_RatioZeroFromAmount(t *testing.T) {
	t.Parallel()

	r := rec("0xaaa", "0xbbb", 0, 5)
	if _, err := r.Ratio(); !errors.Is(err, ErrZeroFromAmount) {
		t.Fatalf("expected ErrZeroFromAmount, got %v", err)
	}

	r.FromAmount = nil
	if _, err := r.Ratio(); !errors.Is(err, ErrZeroFromAmount) {
		t.Fatalf("expected ErrZeroFromAmount for nil amount, got %v", err)
	}
}

func TestSwapRecord_RatioLargeAmounts(t *testing.T) {
	t.Parallel()

	// amounts well past int64 still divide cleanly
	from, _ := new(big.Int).SetString("1000000000000000000000000", 10)
	to, _ := new(big.Int).SetString("2500000000000000000000000", 10)
	r := &SwapRecord{FromAmount: from, ToAmount: to}

	ratio, err := r.Ratio()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ratio != 2.5 {
		t.Fatalf("expected ratio 2.5, got %v", ratio)
	}
}

func TestSwapRecord_ID_RoundTrip(t *testing.T) {
	t.Parallel()

	r := rec("0xaaa", "0xbbb", 1, 1)
	id := r.ID()
	if id != "1200:0xab:3" {
		t.Fatalf("unexpected id %q", id)
	}

	parsed, err := ParseRecordID(id)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.BlockNumber != 1200 || parsed.TxHash != "0xab" || parsed.LogIndex != 3 {
		t.Fatalf("round trip mismatch: %+v", parsed)
	}
}

func TestParseRecordID_Invalid(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "1200", "1200:0xab", "x:0xab:3", "1200:0xab:y"} {
		if _, err := ParseRecordID(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestConversionResult_Hops(t *testing.T) {
	t.Parallel()

	c := &ConversionResult{}
	if c.Hops() != 0 {
		t.Fatalf("empty path must have 0 hops")
	}

	c.Path = []Address{"0xa", "0xb", "0xc"}
	if c.Hops() != 2 {
		t.Fatalf("expected 2 hops, got %d", c.Hops())
	}
}
