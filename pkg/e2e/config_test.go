package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, VerifyConfig(DefaultConfig()))
}

func TestVerifyConfigCollectsEveryProblem(t *testing.T) {
	err := VerifyConfig(Config{PollInterval: 0, MaxPollInterval: -1, StallTimeout: -1, Workers: 0})
	require.Error(t, err)
	for _, field := range []string{"poll_interval", "max_poll_interval", "stall_timeout", "workers"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestConfigFromYAML(t *testing.T) {
	cfg := DefaultConfig()
	doc := []byte("poll_interval: 2ms\nstall_timeout: 1m\nawait_peer_completion: false\n")
	require.NoError(t, yaml.Unmarshal(doc, &cfg))
	assert.Equal(t, 2*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.StallTimeout)
	assert.False(t, cfg.AwaitPeerCompletion)
	assert.Equal(t, 50*time.Millisecond, cfg.MaxPollInterval, "unset keys keep their defaults")
	assert.NoError(t, VerifyConfig(cfg))
}
