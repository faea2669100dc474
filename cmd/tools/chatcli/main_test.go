package main

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestResolveOptionsDefaults(t *testing.T) {
	t.Setenv("RELAYCHAT_SERVER", "")
	v := viper.New()
	cmd := newRootCmd(v)
	require.NoError(t, cmd.ParseFlags(nil))

	opts := resolveOptions(v)
	require.Equal(t, defaultServer, opts.Server)
	require.Equal(t, defaultTimeout, opts.Timeout)
	require.False(t, opts.Plain)
}

func TestResolveOptionsEnvAndFlags(t *testing.T) {
	t.Setenv("RELAYCHAT_SERVER", "relay.internal:9000")
	v := viper.New()
	cmd := newRootCmd(v)
	require.NoError(t, cmd.ParseFlags([]string{"--timeout", "5s", "--plain"}))

	opts := resolveOptions(v)
	require.Equal(t, "relay.internal:9000", opts.Server)
	require.Equal(t, 5*time.Second, opts.Timeout)
	require.True(t, opts.Plain)

	require.NoError(t, cmd.ParseFlags([]string{"--server", "flag.example:1"}))
	require.Equal(t, "flag.example:1", resolveOptions(v).Server)
}
