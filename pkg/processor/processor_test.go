package processor_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/pkg/processor"
)

func words(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("word%d", i+1)
	}
	return strings.Join(parts, " ")
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", processor.Normalize("  a \n\t b   c \r\n"))
	assert.Equal(t, "", processor.Normalize(" \n "))
	assert.Equal(t, "caf menu", processor.Normalize("caf\xe9  menu"))
	assert.Equal(t, "café", processor.Normalize("café"))
}

func TestWindowsCount(t *testing.T) {
	tests := []struct {
		words  int
		window int
		want   int
	}{
		{0, 200, 0},
		{1, 200, 1},
		{200, 200, 1},
		{201, 200, 2},
		{250, 200, 2},
		{1000, 200, 5},
		{7, 3, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.words, tt.window), func(t *testing.T) {
			p := processor.NewWithConfig(processor.ProcessorConfig{ChunkWords: tt.window})
			assert.Len(t, p.Windows(words(tt.words)), tt.want)
		})
	}
}

func TestChunkTwoHundredFifty(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{})

	chunks := p.Chunk(words(250))
	require.Len(t, chunks, 2)

	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	assert.Len(t, first, 200)
	assert.Equal(t, "word1", first[0])
	assert.Equal(t, "word200", first[199])
	assert.Len(t, second, 50)
	assert.Equal(t, "word201", second[0])
	assert.Equal(t, "word250", second[49])
}

func TestChunkDropsShortWindows(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{ChunkWords: 3})

	// windows: 30 chars, 5 chars, exactly 20 chars
	text := "alpha beta gamma-delta-epsilon a b c " + strings.Repeat("x", 20)
	require.Len(t, p.Windows(text), 3)

	chunks := p.Chunk(text)
	assert.Equal(t, []string{"alpha beta gamma-delta-epsilon"}, chunks)
}

func TestProcess(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkWords:  5,
		RemoveNoise: true,
	})

	processed := p.Process(models.Page{
		URL:   "https://example.com",
		Title: "  Example\n Page ",
		Text:  "Accept Cookies   This is a test document. It contains several sentences to demonstrate text processing.",
	})

	assert.Equal(t, "Example Page", processed.Title)
	assert.Equal(t, "This is a test document. It contains several sentences to demonstrate text processing.", processed.Text)
	require.Len(t, processed.Chunks, 3)
	assert.Equal(t, "This is a test document.", processed.Chunks[0])
}
