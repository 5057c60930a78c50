package main

import (
	"bytes"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCustody_Scenario(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), "custody")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	sigs := make(chan os.Signal)
	wg := sync.WaitGroup{}
	wg.Add(1)

	go func() {
		defer wg.Done()

		args := []string{os.Args[0], "--config", dir, "start", "--owner", "owner"}

		err := runWithCfg(args, config{Channel: sigs, Writer: io.Discard})
		require.NoError(t, err)
	}()

	defer func() {
		// Simulate a Ctrl+C
		close(sigs)
		wg.Wait()
	}()

	waitDaemon(t, dir)

	buffer := new(bytes.Buffer)
	cfg := config{Writer: buffer}

	err = runWithCfg(cmd(dir, "call", "--contract", "vault", "--caller", "alice",
		"--value", "50", "--height", "1"), cfg)
	require.NoError(t, err)
	require.Contains(t, buffer.String(), `"eventType": "Deposit"`)

	buffer.Reset()

	err = runWithCfg(cmd(dir, "call", "--contract", "vault", "--caller", "alice",
		"--args", "command=WITHDRAW", "--args", "amount=20", "--height", "1", "--time", "60"), cfg)
	require.NoError(t, err)
	require.Contains(t, buffer.String(), `"eventType": "Withdrawal"`)

	err = runWithCfg(cmd(dir, "call", "--contract", "vault", "--caller", "alice",
		"--args", "command=WITHDRAW", "--args", "amount=100", "--height", "1", "--time", "60"), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient funds")

	buffer.Reset()

	err = runWithCfg(cmd(dir, "query", "account", "--id", "alice"), cfg)
	require.NoError(t, err)
	require.Contains(t, buffer.String(), `"balance": 30`)

	buffer.Reset()

	err = runWithCfg(cmd(dir, "query", "policy"), cfg)
	require.NoError(t, err)
	require.Contains(t, buffer.String(), `"owner": "owner"`)

	buffer.Reset()

	err = runWithCfg(cmd(dir, "asset", "register", "--asset", "art1", "--owner", "bob"), cfg)
	require.NoError(t, err)
	require.Equal(t, "asset art1 registered\n", buffer.String())

	buffer.Reset()

	err = runWithCfg(cmd(dir, "call", "--contract", "market", "--caller", "bob",
		"--args", "command=CREATE_LISTING", "--args", "asset=art1",
		"--args", "price=10", "--args", "expiry=20", "--height", "2", "--time", "60"), cfg)
	require.NoError(t, err)
	require.Contains(t, buffer.String(), `"eventType": "ListingCreated"`)

	buffer.Reset()

	err = runWithCfg(cmd(dir, "query", "listings", "--limit", "5"), cfg)
	require.NoError(t, err)
	require.Contains(t, buffer.String(), `"seller": "bob"`)

	// Test a bad command.
	err = runWithCfg(cmd(dir, "query", "auction"), cfg)
	require.EqualError(t, err, `Required flag "id" not set`)
}

// -----------------------------------------------------------------------------
// Utility functions

func cmd(dir string, args ...string) []string {
	return append([]string{os.Args[0], "--config", dir}, args...)
}

func waitDaemon(t *testing.T, dir string) {
	num := 50
	path := filepath.Join(dir, "daemon.sock")

	for i := 0; i < num; i++ {
		_, err := os.Stat(path)
		if !os.IsNotExist(err) {
			conn, err := net.Dial("unix", path)
			if err == nil {
				conn.Close()
				return
			}
		}

		time.Sleep(30 * time.Millisecond)
	}

	t.Fatal("timeout")
}
