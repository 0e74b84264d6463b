package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFinalMessage(t *testing.T) {
	text, ok := FinalMessage("Thanks!\n<final_message>Good luck with\nthe marathon</final_message>")
	assert.True(t, ok)
	assert.Equal(t, "Good luck with\nthe marathon", text)

	assert.True(t, IsConversationComplete("<final_message></final_message>"))
	assert.False(t, IsConversationComplete("What else do you enjoy?"))
	assert.False(t, IsConversationComplete("<final_message>unterminated"))
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare", `{"nodes": []}`, `{"nodes": []}`},
		{"fenced", "```json\n{\"nodes\": []}\n```", `{"nodes": []}`},
		{"fenced without language", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding prose", "Here you go: {\"a\": {\"b\": 2}} hope it helps", `{"a": {"b": 2}}`},
		{"no object", "  sorry, I cannot  ", "sorry, I cannot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONObject(tt.in))
		})
	}
}
