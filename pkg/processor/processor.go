package processor

import (
	"strings"
	"unicode/utf8"

	"github.com/xhad/driftrag/internal/models"
)

type ProcessorConfig struct {
	ChunkWords    int
	MinChunkChars int
	RemoveNoise   bool
	NoisePatterns []string
}

type Processor struct {
	config ProcessorConfig
}

// ProcessedPage is a page whose text has been normalised and chunked.
type ProcessedPage struct {
	models.Page
	Chunks []string
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.ChunkWords <= 0 {
		config.ChunkWords = 200
	}
	if config.MinChunkChars < 0 {
		config.MinChunkChars = 0
	} else if config.MinChunkChars == 0 {
		config.MinChunkChars = 20
	}
	if config.RemoveNoise && len(config.NoisePatterns) == 0 {
		config.NoisePatterns = defaultNoisePatterns()
	}

	return Processor{
		config: config,
	}
}

func (p *Processor) Process(page models.Page) ProcessedPage {
	page.Title = Normalize(page.Title)
	page.Text = p.Clean(page.Text)

	return ProcessedPage{
		Page:   page,
		Chunks: p.Chunk(page.Text),
	}
}

// Normalize drops invalid UTF-8, collapses every whitespace run to a single
// space and trims. Stored snapshot text is already in this form, so it
// compares equal to a fresh capture of the same page.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToValidUTF8(text, "")), " ")
}

func (p *Processor) Clean(text string) string {
	text = Normalize(text)

	if p.config.RemoveNoise {
		for _, pattern := range p.config.NoisePatterns {
			text = strings.ReplaceAll(text, pattern, "")
		}
		text = Normalize(text)
	}

	return text
}

// Windows splits text into consecutive windows of ChunkWords words.
// A text of N words yields ceil(N/ChunkWords) windows.
func (p *Processor) Windows(text string) []string {
	words := strings.Fields(text)
	windows := make([]string, 0, (len(words)+p.config.ChunkWords-1)/p.config.ChunkWords)

	for i := 0; i < len(words); i += p.config.ChunkWords {
		end := i + p.config.ChunkWords
		if end > len(words) {
			end = len(words)
		}
		windows = append(windows, strings.Join(words[i:end], " "))
	}

	return windows
}

// Chunk returns the windows longer than MinChunkChars characters.
func (p *Processor) Chunk(text string) []string {
	var chunks []string
	for _, window := range p.Windows(text) {
		if utf8.RuneCountInString(window) > p.config.MinChunkChars {
			chunks = append(chunks, window)
		}
	}
	return chunks
}

// Cookie banners and footer links that appear on most pages.
func defaultNoisePatterns() []string {
	return []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
}
