package utils

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NormalizeWallet validates a 0x-prefixed 20-byte hex address and returns
// its lowercase form. ok is false for anything else.
func NormalizeWallet(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return "", false
	}
	if !common.IsHexAddress(raw) {
		return "", false
	}
	return strings.ToLower(common.HexToAddress(raw).Hex()), true
}

// IsWallet reports whether raw is a well-formed wallet address.
func IsWallet(raw string) bool {
	_, ok := NormalizeWallet(raw)
	return ok
}
