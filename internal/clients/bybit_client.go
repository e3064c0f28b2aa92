package clients

import (
	"github.com/hirokisan/bybit/v2"
)

// NewBybitPublicClient creates a Bybit client for unauthenticated market data.
func NewBybitPublicClient(baseURL string) *bybit.Client {
	client := bybit.NewClient()
	if baseURL != "" {
		client = client.WithBaseURL(baseURL)
	}

	return client
}
