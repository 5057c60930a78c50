package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/custody/core"
)

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(`
owner: alice
depositCap: 100
feeRate: 250
assets:
  art1: bob
`))
	require.NoError(t, err)
	require.Equal(t, "alice", config.Owner)
	require.Equal(t, uint64(100), config.DepositCap)
	require.Equal(t, uint64(0), config.DailyWithdrawalLimit)
	require.Equal(t, uint64(86400), config.SecondsPerDay)
	require.Equal(t, uint64(250), config.FeeRate)
	require.Equal(t, uint64(1), config.MinBidIncrement)
	require.Equal(t, 16, config.MaxOffersPerListing)
	require.Equal(t, 10, config.MaxBatch)
	require.Equal(t, map[string]string{"art1": "bob"}, config.Assets)

	_, err = ParseConfig([]byte("owner: alice\nunknown: 1\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to unmarshal config: ")

	_, err = ParseConfig([]byte("owner: alice\nfeeRate: 1001\n"))
	require.EqualError(t, err, "fee rate 1001 above 1000: invalid input")
}

func TestLoadConfig(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), "custody")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")

	err = os.WriteFile(path, []byte("owner: alice\nmaxBatch: 3\n"), os.ModePerm)
	require.NoError(t, err)

	config, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 3, config.MaxBatch)

	_, err = LoadConfig(filepath.Join(dir, "unknown.yaml"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read config file: ")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		config := DefaultConfig()
		config.Owner = "alice"
		return config
	}

	require.NoError(t, valid().Validate())

	config := valid()
	config.Owner = ""
	require.EqualError(t, config.Validate(), "invalid owner '': invalid input")

	config = valid()
	config.SecondsPerDay = 0
	require.EqualError(t, config.Validate(), "seconds per day is zero: invalid input")

	config = valid()
	config.MaxOffersPerListing = 0
	require.EqualError(t, config.Validate(), "max offers per listing 0 not positive: invalid input")

	config = valid()
	config.MaxBatch = -1
	require.EqualError(t, config.Validate(), "max batch -1 not positive: invalid input")

	config = valid()
	config.Assets = map[string]string{"art1": "bad owner"}
	err := config.Validate()
	require.ErrorIs(t, err, core.ErrInvalidInput)
	require.EqualError(t, err, "invalid asset 'art1' of 'bad owner': invalid input")
}
