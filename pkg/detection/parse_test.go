package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", "Sure! Here it is: {\"a\":1} hope that helps", `{"a":1}`},
		{"trailing comma", "{\"a\":[1,2,],}", `{"a":[1,2]}`},
		{"comments", "{\n// note\n\"a\":1 /* x */}", "{\n\n\"a\":1 }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestParse(t *testing.T) {
	det, ok := Parse("```json\n{\"primary\":{\"label\":\"fish\",\"confidence\":0.8,\"box\":{\"x\":0.1,\"y\":0.2,\"w\":0.3,\"h\":0.4},\"cx\":0.25,\"cy\":0.4},\"description\":\"a fish\",\"tags\":[\"fish\",],}\n```")
	require.True(t, ok)
	assert.Equal(t, "fish", det.Primary.Label)
	assert.InDelta(t, 0.3, det.Primary.Box.W, 1e-9)
	assert.Equal(t, []string{"fish"}, det.Tags)

	det, ok = Parse("I cannot see an image.")
	assert.False(t, ok)
	assert.Equal(t, "none", det.Primary.Label)

	det, ok = Parse(`{"primary": nope}`)
	assert.False(t, ok)
	assert.Equal(t, "none", det.Primary.Label)
}

func TestNoneIsCentered(t *testing.T) {
	det := None("nothing here")
	assert.Equal(t, "none", det.Primary.Label)
	assert.Equal(t, 0.0, det.Primary.Confidence)
	assert.InDelta(t, 0.5, det.Primary.Box.X+det.Primary.Box.W/2, 1e-9)
	assert.Equal(t, "nothing here", det.Description)
}
