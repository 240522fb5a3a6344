package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsZeroOnly(t *testing.T) {
	explicit := false
	c := Config{Port: 7000, RespectChoke: &explicit}
	c.ApplyDefaults()

	require.Equal(t, 7000, c.Port)
	require.False(t, c.RespectsChoke())
	require.Equal(t, DefaultChokeWait, c.ChokeWait)
	require.Equal(t, DefaultDHTMinPeers, c.DHTMinPeers)
	require.Equal(t, DefaultDownloadRoot, c.DownloadRoot)
}

func TestApplyDefaultsOnZeroValue(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	require.Equal(t, DefaultPort, c.Port)
	require.True(t, c.RespectsChoke())
	require.Equal(t, DefaultStateFilePath, c.StateFilePath)
}
