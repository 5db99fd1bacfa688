package ethereum

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/cryptovest-backend/internal/models"
)

var ErrInvalidAddress = errors.New("invalid deposit address")

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// NormalizeAddress checks addr against the network's address format and
// returns the canonical form. EVM addresses come back EIP-55 checksummed.
func NormalizeAddress(network models.Network, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	switch {
	case network.IsEVM():
		if !common.IsHexAddress(addr) {
			return "", fmt.Errorf("%w: %q is not a 20-byte hex address", ErrInvalidAddress, addr)
		}
		return common.HexToAddress(addr).Hex(), nil
	case network == models.TRC20:
		if len(addr) != 34 || addr[0] != 'T' || !isBase58(addr) {
			return "", fmt.Errorf("%w: %q is not a TRON address", ErrInvalidAddress, addr)
		}
		return addr, nil
	case network == models.Mainnet:
		if len(addr) < 26 || len(addr) > 90 || strings.ContainsAny(addr, " \t\n") {
			return "", fmt.Errorf("%w: %q has an implausible length", ErrInvalidAddress, addr)
		}
		return addr, nil
	}
	return "", fmt.Errorf("%w: unsupported network %q", ErrInvalidAddress, network)
}

func isBase58(s string) bool {
	for _, r := range s {
		if !strings.ContainsRune(base58Alphabet, r) {
			return false
		}
	}
	return true
}
