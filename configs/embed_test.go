package configs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/blockindex/internal/config"
)

func TestUserConfigTemplate_MatchesDefaults(t *testing.T) {
	// Given: the defaults
	cfg := config.NewConfig()

	// When: decoding the user template over them
	require.NoError(t, yaml.Unmarshal([]byte(UserConfigTemplate), cfg))

	// Then: nothing changed and the result validates
	assert.Equal(t, config.NewConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestGraphConfigTemplate_IsValid(t *testing.T) {
	cfg := config.NewConfig()
	require.NoError(t, yaml.Unmarshal([]byte(GraphConfigTemplate), cfg))
	assert.Equal(t, config.NewConfig(), cfg, "every override ships commented out")
}
