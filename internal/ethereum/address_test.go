package ethereum

import (
	"errors"
	"testing"

	"github.com/kjannette/cryptovest-backend/internal/models"
)

func TestNormalizeAddress(t *testing.T) {
	tests := []struct {
		name    string
		network models.Network
		in      string
		want    string
		wantErr bool
	}{
		{"erc20 lower-case is checksummed", models.ERC20,
			"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", false},
		{"bep20 trims whitespace", models.BEP20,
			"  0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359 ", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", false},
		{"erc20 too short", models.ERC20, "0x1234", "", true},
		{"trc20 valid", models.TRC20, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", false},
		{"trc20 wrong prefix", models.TRC20, "XR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t", "", true},
		{"trc20 non base58", models.TRC20, "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj60", "", true},
		{"btc bech32", models.Mainnet, "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", false},
		{"btc too short", models.Mainnet, "bc1short", "", true},
		{"empty", models.ERC20, "   ", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeAddress(tt.network, tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Fatalf("expected ErrInvalidAddress, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestERC20ABIParses(t *testing.T) {
	if _, err := parseERC20(); err != nil {
		t.Fatalf("ERC20 ABI should parse: %v", err)
	}
}
