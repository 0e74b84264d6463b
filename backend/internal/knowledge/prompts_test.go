package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"buddy/backend/internal/graph"
)

func TestRenderExtractionPrompt(t *testing.T) {
	p := RenderExtractionPrompt("user: I love hiking", "1234", fixedNow())

	assert.Contains(t, p, "user: I love hiking")
	assert.Contains(t, p, "The user's id is 1234")
	assert.Contains(t, p, "March 05, 2024")
	assert.Contains(t, p, graph.GraphSchema)
	assert.Contains(t, p, graph.GraphDataDefinition)
	assert.Contains(t, p, "JSON")
	for _, placeholder := range []string{"{interview}", "{graph_schema}", "{graph_data}", "{date}", "{user_id}"} {
		assert.NotContains(t, p, placeholder)
	}
}

func TestRenderMergePrompt(t *testing.T) {
	p := RenderMergePrompt(`{"existing": true}`, `{"fresh": true}`, fixedNow())

	assert.Contains(t, p, `{"existing": true}`)
	assert.Contains(t, p, `{"fresh": true}`)
	assert.Contains(t, p, "March 05, 2024")
	assert.Contains(t, p, "JSON")
	for _, placeholder := range []string{"{graph_schema}", "{existing_graph}", "{new_graph}", "{date}"} {
		assert.NotContains(t, p, placeholder)
	}
}
