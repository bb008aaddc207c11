package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedPlan is returned when a model reply holds no usable plan.
var ErrMalformedPlan = errors.New("no valid JSON found in response")

var fencedBlock = regexp.MustCompile("```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")

// Plan is the structured reply the agent prompt asks for.
type Plan struct {
	Plan            string   `json:"plan"`
	Commands        []string `json:"commands"`
	NeedsPermission bool     `json:"needsPermission"`
}

// ParsePlan decodes a model reply. It accepts bare JSON, JSON inside a
// fenced code block, or the outermost {...} span of the text.
func ParsePlan(content string) (Plan, error) {
	content = strings.TrimSpace(content)
	candidates := []string{content}
	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(content, "{"), strings.LastIndex(content, "}"); start >= 0 && end > start {
		candidates = append(candidates, content[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		p, err := decodePlan(strings.TrimSpace(c))
		if err != nil {
			lastErr = err
			continue
		}
		return p, nil
	}
	return Plan{}, fmt.Errorf("%w: %v", ErrMalformedPlan, lastErr)
}

// decodePlan accepts only a JSON object carrying a commands array.
func decodePlan(text string) (Plan, error) {
	var wire struct {
		Plan            string    `json:"plan"`
		Commands        *[]string `json:"commands"`
		NeedsPermission bool      `json:"needsPermission"`
	}
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return Plan{}, err
	}
	if wire.Commands == nil {
		return Plan{}, errors.New("reply has no commands array")
	}
	return Plan{
		Plan:            wire.Plan,
		Commands:        cleanCommands(*wire.Commands),
		NeedsPermission: wire.NeedsPermission,
	}, nil
}

func cleanCommands(cmds []string) []string {
	out := cmds[:0:0]
	for _, c := range cmds {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// isConfirmation reports whether a reply to the permission prompt approves
// the plan.
func isConfirmation(reply string) bool {
	reply = strings.ToLower(strings.TrimSpace(reply))
	return reply == "yes" || reply == "y"
}
