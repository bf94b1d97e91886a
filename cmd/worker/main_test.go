package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Setenv("ASYNCAUTH_CONFIG", "")

	opts, err := parseFlags(nil)
	require.NoError(t, err)
	assert.False(t, opts.recoverJobs, "recovery requeues other workers' jobs, so it must be opted into")
	assert.Equal(t, 0, opts.workers)

	opts, err = parseFlags([]string{"--recover", "--workers", "8", "--config", "worker.yaml"})
	require.NoError(t, err)
	assert.True(t, opts.recoverJobs)
	assert.Equal(t, 8, opts.workers)
	assert.Equal(t, "worker.yaml", opts.configPath)

	_, err = parseFlags([]string{"--help"})
	assert.ErrorIs(t, err, pflag.ErrHelp)
}
