package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("NEO4J_URI", "")
	t.Setenv("EMBEDDING_DIMENSIONS", "")
	t.Setenv("KNOWLEDGE_BUILD_TIMEOUT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4jURI)
	assert.Equal(t, 384, cfg.EmbeddingDimensions)
	assert.Equal(t, 2*time.Minute, cfg.KnowledgeBuildTimeout)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SEARCH_THRESHOLD", "0.75")
	t.Setenv("USER_LOCK_WAIT", "3s")
	t.Setenv("AUDIT_HISTORY", "10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 0.75, cfg.SearchThreshold, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.UserLockWait)
	assert.Equal(t, 10, cfg.AuditHistory)
}

func TestValidate_RejectsThresholdOutOfRange(t *testing.T) {
	t.Setenv("SEARCH_THRESHOLD", "1.5")

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvHelpers_FallBackOnGarbage(t *testing.T) {
	t.Setenv("SOME_INT", "abc")
	t.Setenv("SOME_DURATION", "forever")

	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))
	assert.Equal(t, time.Second, getEnvDuration("SOME_DURATION", time.Second))
}

func TestValidate_RejectsNonPositiveBuildTimeout(t *testing.T) {
	for _, v := range []string{"0s", "-5s"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("KNOWLEDGE_BUILD_TIMEOUT", v)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "KNOWLEDGE_BUILD_TIMEOUT")
		})
	}
}
