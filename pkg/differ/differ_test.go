package differ

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/driftrag/internal/models"
)

func TestDiffIdenticalText(t *testing.T) {
	texts := []string{
		"",
		"one",
		"The quick brown fox jumps over the lazy dog",
		"repeat repeat repeat repeat",
	}

	for _, text := range texts {
		assert.Empty(t, Diff(text, text), "text %q", text)
	}
}

func TestDiffIgnoresCaseAndWhitespace(t *testing.T) {
	assert.Empty(t, Diff("Hello   World\n\tagain", "hello world AGAIN"))
	assert.True(t, Equivalent("Hello   World", "hello world"))
	assert.False(t, Equivalent("Hello World", "hello there world"))
}

func TestDiff(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want []models.ChangeRun
	}{
		{
			name: "replacement",
			old:  "the quick brown fox",
			new:  "the slow brown fox",
			want: []models.ChangeRun{
				{Type: models.ChangeRemoved, Text: "quick"},
				{Type: models.ChangeAdded, Text: "slow"},
			},
		},
		{
			name: "appended words merge into one run",
			old:  "a b c",
			new:  "a b c d e",
			want: []models.ChangeRun{
				{Type: models.ChangeAdded, Text: "d e"},
			},
		},
		{
			name: "removed words merge into one run",
			old:  "a b c d",
			new:  "a d",
			want: []models.ChangeRun{
				{Type: models.ChangeRemoved, Text: "b c"},
			},
		},
		{
			name: "first capture",
			old:  "",
			new:  "brand new page",
			want: []models.ChangeRun{
				{Type: models.ChangeAdded, Text: "brand new page"},
			},
		},
		{
			name: "keeps casing of each side",
			old:  "Price 10 EUR",
			new:  "price 12 USD",
			want: []models.ChangeRun{
				{Type: models.ChangeRemoved, Text: "10 EUR"},
				{Type: models.ChangeAdded, Text: "12 USD"},
			},
		},
		{
			name: "separate edits stay separate",
			old:  "alpha beta gamma delta epsilon",
			new:  "alpha gamma delta zeta epsilon",
			want: []models.ChangeRun{
				{Type: models.ChangeRemoved, Text: "beta"},
				{Type: models.ChangeAdded, Text: "zeta"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Diff(tt.old, tt.new))
		})
	}
}

func TestDiffNonEmptyWhenNotEquivalent(t *testing.T) {
	pairs := [][2]string{
		{"a b", "a b c"},
		{"x", "y"},
		{"one two three", "three two one"},
	}

	for _, p := range pairs {
		assert.False(t, Equivalent(p[0], p[1]))
		assert.NotEmpty(t, Diff(p[0], p[1]))
	}
}
