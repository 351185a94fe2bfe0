package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fpmath "PerpAMM/internal/math"
	"PerpAMM/internal/state"
)

const governance = "00000000-0000-0000-0000-0000000000a0"

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("PERP_GENESIS_GOVERNANCE", governance)
	t.Setenv("PERP_HTTP_ADDR", ":18080")
	t.Setenv("PERP_PERSIST_BATCH_SIZE", "7")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, ":18080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, 7, cfg.PersistBatchSize)
	assert.Equal(t, 10*time.Millisecond, cfg.PersistFlushTimeout)
	assert.True(t, cfg.EnablePostgres)
	assert.Equal(t, governance, cfg.Genesis.Governance)
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("PERP_GENESIS_GOVERNANCE", governance)
	t.Setenv("PERP_GRPC_ADDR", ":1")

	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	flags.String("grpc-addr", "", "")
	flags.Bool("enable-nats", true, "")
	require.NoError(t, flags.Parse([]string{"--grpc-addr=:2", "--enable-nats=false"}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, ":2", cfg.GRPCAddr)
	assert.False(t, cfg.EnableNATS)
}

func TestLoadConfig_GenesisFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perpamm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
enable_postgres: false
snapshot_interval: 30s
genesis:
  governance: `+governance+`
  exchanges:
    - 00000000-0000-0000-0000-0000000000e0
  index_price: "7000"
  params:
    initialMarginRate: "0.2"
    withdrawalLockBlockCount: "12"
  wallets:
    00000000-0000-0000-0000-0000000000a1: "1000.5"
`), 0o600))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.False(t, cfg.EnablePostgres)
	assert.Equal(t, 30*time.Second, cfg.SnapshotInterval)

	eng, err := cfg.Genesis.EngineConfig(16)
	require.NoError(t, err)
	assert.Equal(t, uuid.MustParse(governance), eng.Ledger.Governance)
	assert.Equal(t, []uuid.UUID{uuid.MustParse("00000000-0000-0000-0000-0000000000e0")}, eng.Exchanges)
	assert.Equal(t, "0.2", eng.Ledger.Params.InitialMarginRate.String())
	assert.Equal(t, uint64(12), eng.Ledger.Params.WithdrawalLockBlockCount)
	assert.Equal(t, 16, eng.IdempotencyCapacity)

	price, err := cfg.Genesis.IndexPriceValue()
	require.NoError(t, err)
	assert.True(t, price.Equal(fpmath.FromInt64(7000)))

	wallets, err := cfg.Genesis.WalletBalances()
	require.NoError(t, err)
	assert.Equal(t, "1000.5", wallets[uuid.MustParse("00000000-0000-0000-0000-0000000000a1")].String())
}

func TestGenesis_Rejects(t *testing.T) {
	_, err := GenesisConfig{}.EngineConfig(0)
	assert.Error(t, err, "governance is required")

	_, err = GenesisConfig{Governance: "nope"}.EngineConfig(0)
	assert.Error(t, err)

	_, err = GenesisConfig{
		Governance: governance,
		Params:     map[string]string{"maintenanceMarginRate": "0.5"},
	}.EngineConfig(0)
	assert.ErrorIs(t, err, state.ErrInvalidParameter)

	_, err = GenesisConfig{
		Governance: governance,
		Params:     map[string]string{"noSuchParam": "1"},
	}.EngineConfig(0)
	assert.Error(t, err)
}

func TestCanonicalParam(t *testing.T) {
	assert.Equal(t, state.ParamInitialMarginRate, canonicalParam("initialmarginrate"))
	assert.Equal(t, "other", canonicalParam("other"))
}
