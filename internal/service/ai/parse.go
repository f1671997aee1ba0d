package ai

import (
	"encoding/json"
	"strings"

	"github.com/zhouzirui/simplifychat/backend/internal/model/chat"
)

type summaryPayload struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
}

// ParseSummary reads the model answer. A JSON object is preferred; otherwise the text is
// read as blank-line separated sections: summary, key points, action items.
func ParseSummary(content string) (*chat.Summary, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrEmptyOutput
	}

	if summary, ok := parseJSONSummary(trimmed); ok {
		if summary.Summary == "" && len(summary.KeyPoints) == 0 && len(summary.ActionItems) == 0 {
			return nil, ErrEmptyOutput
		}
		return summary, nil
	}
	return parseSections(trimmed), nil
}

// parseJSONSummary reports ok whenever the embedded object decodes; its fields may be empty.
func parseJSONSummary(content string) (*chat.Summary, bool) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, false
	}

	var payload summaryPayload
	if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err != nil {
		return nil, false
	}
	return &chat.Summary{
		Summary:     strings.TrimSpace(payload.Summary),
		KeyPoints:   cleanItems(payload.KeyPoints),
		ActionItems: cleanItems(payload.ActionItems),
	}, true
}

func parseSections(content string) *chat.Summary {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	raw := strings.Split(content, "\n\n")
	sections := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			sections = append(sections, s)
		}
	}

	out := &chat.Summary{KeyPoints: []string{}, ActionItems: []string{}}
	if len(sections) == 0 {
		return out
	}

	out.Summary = sectionBody(sections[0])
	if len(sections) > 1 {
		out.KeyPoints = listItems(sections[1])
	}
	if len(sections) > 2 {
		out.ActionItems = listItems(sections[2])
	}
	return out
}

// sectionBody drops a heading line such as "1. Summary:" when it is followed by text.
func sectionBody(section string) string {
	lines := strings.Split(section, "\n")
	if len(lines) > 1 && isHeading(lines[0]) {
		lines = lines[1:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// listItems returns the entries after the heading line, with list markers removed.
func listItems(section string) []string {
	lines := strings.Split(section, "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	return cleanItems(lines)
}

func cleanItems(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = stripMarker(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// stripMarker removes one bullet ("- ", "* ", "• ") and then one "1." style number.
// Inline markdown such as **bold** is left untouched.
func stripMarker(line string) string {
	s := strings.TrimSpace(line)
	for _, bullet := range []string{"-", "*", "•"} {
		rest, ok := strings.CutPrefix(s, bullet)
		if !ok {
			continue
		}
		if rest == "" {
			return ""
		}
		if rest[0] == ' ' || rest[0] == '\t' {
			s = strings.TrimSpace(rest)
		}
		break
	}
	if n := numberedPrefix(s); n > 0 {
		s = strings.TrimSpace(s[n:])
	}
	return s
}

// numberedPrefix returns the length of a leading "12." or "3)" marker, or 0.
func numberedPrefix(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) || (s[i] != '.' && s[i] != ')') {
		return 0
	}
	if i+1 < len(s) && s[i+1] != ' ' {
		return 0
	}
	return i + 1
}

// isHeading matches markdown headings ("## Summary") and label lines ending in a colon.
func isHeading(line string) bool {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return true
	}
	line = strings.TrimSpace(strings.Trim(line, "*"))
	return strings.HasSuffix(line, ":")
}
