// Package vault is the boundary to encrypted credential storage.
package vault

import (
	"os"
	"strings"
)

// Fixed credential aliases, one per provider/credential role.
const (
	AliasLedgerToken = "ledger_oauth_token"
	AliasHMACKey     = "hmac_api_key"
	AliasHMACSecret  = "hmac_api_secret"
	AliasSplitToken  = "split_onchain_token"
)

// Vault resolves secrets by alias. The boolean is false when the alias holds nothing.
type Vault interface {
	Get(alias string) (string, bool)
}

const envPrefix = "WALLETSYNC_"

// EnvVault reads secrets from environment variables named WALLETSYNC_<ALIAS>.
type EnvVault struct {
	lookup func(string) (string, bool)
}

// NewEnvVault creates a vault backed by the process environment.
func NewEnvVault() *EnvVault {
	return &EnvVault{lookup: os.LookupEnv}
}

// EnvName returns the environment variable name for alias.
func EnvName(alias string) string {
	return envPrefix + strings.ToUpper(alias)
}

func (v *EnvVault) Get(alias string) (string, bool) {
	value, ok := v.lookup(EnvName(alias))
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}

// MemoryVault keeps secrets in process memory.
type MemoryVault struct {
	secrets map[string]string
}

// NewMemoryVault creates a vault seeded with secrets.
func NewMemoryVault(secrets map[string]string) *MemoryVault {
	v := &MemoryVault{secrets: make(map[string]string, len(secrets))}
	for alias, secret := range secrets {
		v.secrets[alias] = secret
	}
	return v
}

func (v *MemoryVault) Get(alias string) (string, bool) {
	secret, ok := v.secrets[alias]
	if !ok || secret == "" {
		return "", false
	}
	return secret, true
}
