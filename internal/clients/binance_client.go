package clients

import (
	"github.com/adshao/go-binance/v2"
)

// NewBinancePublicClient creates a Binance client for unauthenticated market data.
func NewBinancePublicClient(baseURL string) *binance.Client {
	client := binance.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return client
}
