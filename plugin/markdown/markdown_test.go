package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToPlainText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Emphasis",
			input:    "You can **skip 2** classes of *CS1*.",
			expected: "You can skip 2 classes of CS1.",
		},
		{
			name:     "Heading",
			input:    "## Summary\n\nAll good.",
			expected: "Summary\n\nAll good.",
		},
		{
			name:     "BulletList",
			input:    "- CS1: 75%\n- MA2: 90%",
			expected: "• CS1: 75%\n• MA2: 90%",
		},
		{
			name:     "OrderedList",
			input:    "3. first\n4. second",
			expected: "3. first\n4. second",
		},
		{
			name:     "CodeBlock",
			input:    "Run:\n\n```\netlabplus sync\n```",
			expected: "Run:\n\n    etlabplus sync",
		},
		{
			name:     "Link",
			input:    "See [the portal](https://example.com).",
			expected: "See the portal (https://example.com).",
		},
		{
			name:     "InlineHTML",
			input:    "Keep <b>this</b> text",
			expected: "Keep this text",
		},
		{
			name:     "Empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ToPlainText(tt.input))
		})
	}
}

func TestToPlainText_Table(t *testing.T) {
	out := ToPlainText("| Code | % |\n|---|---|\n| CS1 | 75 |\n")
	assert.Contains(t, out, "Code | %")
	assert.Contains(t, out, "CS1 | 75")
}
