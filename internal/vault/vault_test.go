package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvVault_Get(t *testing.T) {
	t.Setenv("WALLETSYNC_LEDGER_OAUTH_TOKEN", "token-1")
	t.Setenv("WALLETSYNC_HMAC_API_KEY", "   ")

	v := NewEnvVault()

	token, ok := v.Get(AliasLedgerToken)
	assert.True(t, ok)
	assert.Equal(t, "token-1", token)

	_, ok = v.Get(AliasHMACKey)
	assert.False(t, ok, "blank values count as missing")

	_, ok = v.Get(AliasSplitToken)
	assert.False(t, ok)
}

func TestMemoryVault(t *testing.T) {
	v := NewMemoryVault(map[string]string{AliasHMACKey: "key", AliasHMACSecret: ""})

	key, ok := v.Get(AliasHMACKey)
	assert.True(t, ok)
	assert.Equal(t, "key", key)

	_, ok = v.Get(AliasHMACSecret)
	assert.False(t, ok)

	_, ok = v.Get(AliasSplitToken)
	assert.False(t, ok)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "WALLETSYNC_SPLIT_ONCHAIN_TOKEN", EnvName(AliasSplitToken))
}
