// Package detection decodes the JSON answers vision models give to the
// subject locator prompt. Models wrap JSON in prose, code fences and
// comments, so answers are cleaned before decoding.
package detection

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/image-annotator/pkg/types"
)

// None is the centered placeholder used when nothing was found.
func None(description string) *types.Detection {
	return &types.Detection{
		Primary: types.Primary{
			Label: "none",
			Box:   types.NormalizedBox{X: 0.25, Y: 0.25, W: 0.5, H: 0.5},
			Cx:    0.5,
			Cy:    0.5,
		},
		Description: description,
		Tags:        []string{"fallback"},
	}
}

// Parse decodes a model answer. The bool is false when a placeholder had
// to be substituted.
func Parse(raw string) (*types.Detection, bool) {
	raw = Sanitize(raw)
	if !strings.HasPrefix(raw, "{") {
		return None("model returned non-JSON response"), false
	}
	var det types.Detection
	if err := json.Unmarshal([]byte(raw), &det); err != nil {
		return None("failed to parse model response"), false
	}
	return &det, true
}

var (
	reFence    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Sanitize strips code fences, comments and trailing commas, and keeps
// only the outermost object.
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)
	if m := reFence.FindStringSubmatch(raw); m != nil {
		raw = m[1]
	}
	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
