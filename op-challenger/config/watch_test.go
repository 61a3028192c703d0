package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"
)

func TestWatchConfigFileNoopWithoutPath(t *testing.T) {
	require.NoError(t, WatchConfigFile(context.Background(), log.New(), "", func(Reloadable) {
		t.Fatal("onReload must not be called when no path is configured")
	}))
}

func TestWatchConfigFileReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "op-challenger.toml")
	require.NoError(t, os.WriteFile(path, []byte("poll_interval = \"1m\"\ntrusted_rate_limit = 2.0\n"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan Reloadable, 4)
	go func() {
		_ = WatchConfigFile(ctx, log.New(), path, func(r Reloadable) { reloads <- r })
	}()

	// Give the watcher time to register before mutating the file.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("poll_interval = \"2m\"\ntrusted_rate_limit = 4.0\n"), 0o644))

	select {
	case r := <-reloads:
		require.Equal(t, 2*time.Minute, r.PollInterval)
		require.Equal(t, 4.0, r.TrustedRate)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
