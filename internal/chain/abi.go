package chain

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"ratepath/internal/domain"
)

// SwapTopic is the event signature hash of the venue's Swap event. Only logs
// carrying this topic are fetched.
const SwapTopic = "0xc42079f94a6350d7e6235f29174924f928cc2ac818eb64fed8004e115fbcca67"

// Precomputed function selectors
const (
	selToken0   = "0x0dfe1681"
	selToken1   = "0xd21220a7"
	selDecimals = "0x313ce567"
	selSymbol   = "0x95d89b41"
)

// DecodeAddressWord extracts the low-order 20 bytes of a 32-byte padded
// eth_call return word: hex characters 26..66 of the 0x-prefixed string.
func DecodeAddressWord(out string) (domain.Address, error) {
	if !strings.HasPrefix(out, "0x") || len(out) < 66 {
		return "", fmt.Errorf("short address word %q", out)
	}
	return domain.NormalizeAddress("0x" + out[26:66]), nil
}

// DecodeUint8 reads a hex-encoded integer word. Values above 255 are masked
// down, matching how token decimals are consumed.
func DecodeUint8(out string) (uint8, error) {
	h := strings.TrimPrefix(out, "0x")
	if h == "" {
		return 0, fmt.Errorf("empty integer word")
	}
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return 0, fmt.Errorf("non-hex integer word %q", out)
	}
	return uint8(n.Uint64() & 0xff), nil
}

// DecodeSymbol interprets the whole eth_call payload as text and sanitizes it.
// Proper ABI strings carry offset/length words whose bytes all fall in the
// stripped range, so decoding the full payload works for both ABI strings and
// legacy bytes32-style returns.
func DecodeSymbol(out string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(out, "0x"))
	if err != nil {
		return "", fmt.Errorf("decode symbol payload: %v", err)
	}
	return SanitizeSymbol(string(raw)), nil
}

// SanitizeSymbol drops control bytes (0x00-0x09) and spaces that improperly
// padded token contracts leave in the decoded payload.
func SanitizeSymbol(s string) string {
	return strings.Map(func(r rune) rune {
		if r <= 0x09 || r == ' ' {
			return -1
		}
		return r
	}, s)
}

// DecodeSwapAmounts splits a swap log data payload into its two amount words:
// hex characters 2..66 and 66..130 of the 0x-prefixed string.
func DecodeSwapAmounts(data string) (amount0, amount1 *big.Int, err error) {
	if !strings.HasPrefix(data, "0x") || len(data) < 130 {
		return nil, nil, fmt.Errorf("swap data too short: %d chars", len(data))
	}
	if amount0, err = decodeSignedWord(data[2:66]); err != nil {
		return nil, nil, err
	}
	if amount1, err = decodeSignedWord(data[66:130]); err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

var wordModulus = new(big.Int).Lsh(big.NewInt(1), 256)

// decodeSignedWord reads a 32-byte two's complement integer and returns its
// absolute value. Sign only marks trade direction, which is re-derived from
// pool token order instead.
func decodeSignedWord(h string) (*big.Int, error) {
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("decode amount word: %v", err)
	}
	n := new(big.Int).SetBytes(raw)
	if n.Bit(255) == 1 {
		n.Sub(n, wordModulus)
	}
	return n.Abs(n), nil
}
