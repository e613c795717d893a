package main

import (
	"bytes"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	var out bytes.Buffer

	opts, err := parseFlags([]string{"--config", "c.json", "--env-file=prod.env", "-p", "7000"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "c.json", opts.load.ConfigFile)
	assert.Equal(t, "prod.env", opts.load.EnvFile)
	assert.Equal(t, 7000, opts.port)

	opts, err = parseFlags(nil, &out)
	require.NoError(t, err)
	assert.Zero(t, opts.port)
}

func TestParseFlagsErrors(t *testing.T) {
	var out bytes.Buffer

	_, err := parseFlags([]string{"--bogus"}, &out)
	assert.Error(t, err)

	_, err = parseFlags([]string{"extra"}, &out)
	assert.Error(t, err)

	_, err = parseFlags([]string{"--help"}, &out)
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, out.String(), "--env-file")
}

func TestRun_InvalidConfiguration(t *testing.T) {
	t.Setenv("LOG_FORMAT", "xml")

	err := run(nil, &bytes.Buffer{}, make(chan os.Signal))
	assert.Error(t, err)
}

// FUNCTIONAL VALIDATION TEST: A signal after startup shuts the process down cleanly
func TestRun_ShutsDownOnSignal(t *testing.T) {
	t.Setenv("STORE_DSN", "sqlite://"+filepath.Join(t.TempDir(), "courier.db"))
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "0")

	signals := make(chan os.Signal, 1)
	result := make(chan error, 1)
	var logs bytes.Buffer

	go func() { result <- run(nil, &logs, signals) }()

	time.Sleep(200 * time.Millisecond)
	signals <- syscall.SIGTERM

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after the signal")
	}
}
