package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.Provider = "gemini"
	cfg.Refine.MaxAttempts = 0
	cfg.Filter.DistanceThreshold = 3
	cfg.Refine.InitialFiles = nil

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "LLM.Provider")
	assert.Contains(t, msg, "Refine.MaxAttempts")
	assert.Contains(t, msg, "Filter.DistanceThreshold")
	assert.Contains(t, msg, "Refine.InitialFiles")
}

func TestValidate_EmptyInitialFileName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Refine.InitialFiles = []string{"main.py", ""}
	assert.Error(t, cfg.Validate())
}

func TestModelOr(t *testing.T) {
	assert.Equal(t, "gpt-4o", ModelOr("gpt-4o", "gpt-4o-mini"))
	assert.Equal(t, "gpt-4o-mini", ModelOr("", "gpt-4o-mini"))
}
