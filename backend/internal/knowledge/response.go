package knowledge

import (
	"regexp"
	"strings"
)

var finalMessagePattern = regexp.MustCompile(`(?s)<final_message>(.*?)</final_message>`)

// FinalMessage returns the text wrapped in the conversation-closing marker
func FinalMessage(content string) (string, bool) {
	m := finalMessagePattern.FindStringSubmatch(content)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// IsConversationComplete reports whether an assistant reply closes the conversation
func IsConversationComplete(content string) bool {
	_, ok := FinalMessage(content)
	return ok
}

// extractJSONObject strips markdown code fences and surrounding prose from a
// model reply, leaving the outermost {...} span. Text without braces is
// returned trimmed so the parser reports it.
func extractJSONObject(content string) string {
	jsonStr := strings.TrimSpace(content)

	// Remove markdown code blocks if present
	if strings.HasPrefix(jsonStr, "```") {
		lines := strings.Split(jsonStr, "\n")
		var jsonLines []string
		inCodeBlock := false
		for _, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inCodeBlock = !inCodeBlock
				continue
			}
			if inCodeBlock {
				jsonLines = append(jsonLines, line)
			}
		}
		jsonStr = strings.Join(jsonLines, "\n")
	}

	// Find JSON object boundaries
	if start := strings.Index(jsonStr, "{"); start != -1 {
		if end := strings.LastIndex(jsonStr, "}"); end != -1 && end > start {
			jsonStr = jsonStr[start : end+1]
		}
	}
	return jsonStr
}
