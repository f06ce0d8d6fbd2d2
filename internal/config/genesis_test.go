package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/ledgerd/internal/chain"
	"github.com/roach88/ledgerd/internal/engine"
)

func TestLoadGenesis_File(t *testing.T) {
	g, err := LoadGenesis(filepath.Join("testdata", "genesis.cue"))
	require.NoError(t, err)

	assert.Equal(t, chain.AccountID("root"), g.Owner)
	assert.Equal(t, uint64(3_600_000), g.TimeUnitsPerHour, "default")
	assert.Equal(t, uint64(20), g.Social.PostDeposit, "override")
	assert.Equal(t, uint64(5), g.Social.PostReward, "default")
	assert.Equal(t, uint32(3), g.Community.MaxGroupMembers)
	assert.Equal(t, uint64(100), g.Community.GroupDeposit)
	assert.Equal(t, []chain.AccountID{"mod-1"}, g.Community.Moderators)
	assert.Equal(t, map[chain.AccountID]uint64{"alice": 1000, "bob": 250}, g.Endowments)
}

func TestParseGenesis_Defaults(t *testing.T) {
	g, err := ParseGenesis("min.cue", []byte(`owner: "o"`))
	require.NoError(t, err)

	want := engine.DefaultGenesis("o")
	want.Community.Moderators = []chain.AccountID{}
	want.Endowments = map[chain.AccountID]uint64{}
	assert.Equal(t, want, g)
}

func TestParseGenesis_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"missing owner", `social: post_deposit: 1`, ErrCodeSchema},
		{"empty owner", `owner: ""`, ErrCodeSchema},
		{"unknown field", `owner: "o", treasury: 5`, ErrCodeSchema},
		{"negative endowment", `owner: "o", endowments: a: -1`, ErrCodeSchema},
		{"zero hour", `owner: "o", time_units_per_hour: 0`, ErrCodeSchema},
		{"member cap overflow", `owner: "o", community: max_group_members: 5000000000`, ErrCodeSchema},
		{"syntax", `owner: "o`, ErrCodeCompile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGenesis("bad.cue", []byte(tt.src))
			require.Error(t, err)

			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "got %T: %v", err, err)
			assert.Equal(t, tt.code, cfgErr.Code)
			assert.Equal(t, "bad.cue", cfgErr.File)
		})
	}
}

func TestLoadGenesis_MissingFile(t *testing.T) {
	_, err := LoadGenesis(filepath.Join(t.TempDir(), "nope.cue"))
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, ErrCodeRead, cfgErr.Code)
}

// unsetEnv clears keys for the test. t.Setenv registers the restore; the
// variables must be absent rather than empty for dotenv files to apply.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoadEnv_Defaults(t *testing.T) {
	unsetEnv(t, EnvDB, EnvDriver, EnvGenesis, EnvRedisAddr, EnvRedisStream)
	t.Chdir(t.TempDir()) // no .env here

	env, err := LoadEnv()
	require.NoError(t, err)
	assert.Equal(t, Env{
		DB:          DefaultDB,
		Driver:      DefaultDriver,
		Genesis:     DefaultGenesis,
		RedisStream: DefaultRedisStream,
	}, env)
}

func TestLoadEnv_DotenvFile(t *testing.T) {
	unsetEnv(t, EnvDB, EnvDriver)
	t.Setenv(EnvRedisAddr, "from-process:6379")

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"LEDGERD_DB=/var/lib/ledgerd.db\nLEDGERD_DRIVER=sqlite\nLEDGERD_REDIS_ADDR=from-file:6379\n",
	), 0o600))

	env, err := LoadEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/ledgerd.db", env.DB)
	assert.Equal(t, "sqlite", env.Driver)
	assert.Equal(t, "from-process:6379", env.RedisAddr, "process environment wins")
}

func TestLoadEnv_BadDriver(t *testing.T) {
	t.Setenv(EnvDriver, "postgres")
	t.Chdir(t.TempDir())

	_, err := LoadEnv()
	assert.ErrorContains(t, err, "unsupported driver")
}
