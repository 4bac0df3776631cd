package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xhad/driftrag/internal/logger"
	"github.com/xhad/driftrag/internal/models"
	"github.com/xhad/driftrag/internal/types"
	"github.com/xhad/driftrag/pkg/config"
	"github.com/xhad/driftrag/pkg/ingest"
	"github.com/xhad/driftrag/pkg/llm"
	"github.com/xhad/driftrag/pkg/processor"
	"github.com/xhad/driftrag/pkg/remoteindex"
	"github.com/xhad/driftrag/pkg/scraper"
	"github.com/xhad/driftrag/pkg/search"
	"github.com/xhad/driftrag/pkg/store"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	collection string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "driftrag",
		Short: "Track how web pages change and chat with what they say",
		Long: `driftrag captures web pages as versioned snapshots, records what changed
between captures, and answers questions grounded in the captured text.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.collection, "collection", "", "collection to read and write (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newIngestCmd(opts),
		newRecheckCmd(opts),
		newSearchCmd(opts),
		newChatCmd(opts),
		newSyncCmd(opts),
		newUploadCmd(opts),
	)
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

// app is the wiring shared by the subcommands: validated config, logger and
// the lazily opened store.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	store types.ChunkStore
}

func newApp(opts *rootOptions) (*app, error) {
	cfg, err := config.LoadConfig(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.collection != "" {
		cfg.Database.Collection = models.SanitizeScope(opts.collection)
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return nil, fmt.Errorf("invalid config:\n  %s", strings.Join(msgs, "\n  "))
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Development); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &app{cfg: cfg, log: logger.L()}, nil
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close store", zap.Error(err))
		}
	}
}

func (a *app) openStore(ctx context.Context) (types.ChunkStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.New(ctx, store.Config{
		Driver:    a.cfg.Database.Driver,
		URL:       a.cfg.Database.URL,
		Path:      a.cfg.Database.Path,
		VectorDim: a.cfg.Database.VectorDim,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = s
	return s, nil
}

func (a *app) embedder() (types.EmbeddingProvider, error) {
	return llm.NewEmbedder(llm.EmbedderConfig{
		Provider: a.cfg.Embedding.Provider,
		Model:    a.cfg.Embedding.Model,
		BaseURL:  a.cfg.Embedding.BaseURL,
		APIKey:   a.cfg.Embedding.APIKey,
		Timeout:  a.cfg.Embedding.Timeout,
	})
}

func (a *app) scraperConfig() scraper.ScraperConfig {
	return scraper.ScraperConfig{
		RateLimit: a.cfg.Scraper.RateLimit,
		Timeout:   a.cfg.Scraper.Timeout,
		UserAgent: a.cfg.Scraper.UserAgent,
	}
}

func (a *app) ingester(ctx context.Context, onResult func(ingest.BatchResult)) (*ingest.Ingester, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	renderer, err := scraper.NewRenderer(a.cfg.Scraper.Renderer, a.scraperConfig())
	if err != nil {
		return nil, err
	}
	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkWords:    a.cfg.Processor.ChunkWords,
		MinChunkChars: a.cfg.Processor.MinChunkChars,
		RemoveNoise:   a.cfg.Scraper.RemoveNoise,
	})

	return ingest.NewWithConfig(ingest.IngesterConfig{
		Collection: a.cfg.Database.Collection,
		Workers:    a.cfg.Scraper.Workers,
		Timeout:    a.cfg.Scraper.Timeout * 4,
		OnResult:   onResult,
	}, renderer, proc, emb, s, a.log.Named("ingest")), nil
}

func (a *app) searcher(ctx context.Context, latestOnly bool) (*search.Searcher, error) {
	s, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := a.embedder()
	if err != nil {
		return nil, err
	}
	return search.NewWithConfig(emb, s, search.SearchConfig{
		Collection: a.cfg.Database.Collection,
		TopK:       a.cfg.Search.TopK,
		LatestOnly: latestOnly || a.cfg.Search.LatestOnly,
	}, a.log.Named("search")), nil
}

func (a *app) chatEngine() (*llm.ChatEngine, error) {
	return llm.NewWithConfig(llm.ChatConfig{
		Provider:       a.cfg.LLM.Provider,
		Model:          a.cfg.LLM.Model,
		Temperature:    a.cfg.LLM.Temperature,
		MaxTokens:      a.cfg.LLM.MaxTokens,
		SystemTemplate: a.cfg.Conversation.SystemPrompt,
		BaseURL:        a.cfg.LLM.BaseURL,
		APIKey:         a.cfg.LLM.APIKey,
	})
}

// remoteIndex talks to the OpenAI vector store API whichever provider serves
// chat and embeddings.
func (a *app) remoteIndex() (*remoteindex.OpenAIIndex, error) {
	apiKey, baseURL := a.cfg.LLM.APIKey, ""
	switch {
	case a.cfg.LLM.Provider == config.ProviderOpenAI:
		baseURL = a.cfg.LLM.BaseURL
	case a.cfg.Embedding.Provider == config.ProviderOpenAI:
		apiKey, baseURL = a.cfg.Embedding.APIKey, a.cfg.Embedding.BaseURL
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("remote index requires an OpenAI API key (set OPENAI_API_KEY)")
	}

	return remoteindex.NewOpenAIIndex(remoteindex.OpenAIConfig{
		APIKey:       apiKey,
		BaseURL:      baseURL,
		PollInterval: a.cfg.RemoteIndex.PollInterval,
		PollTimeout:  a.cfg.RemoteIndex.PollTimeout,
	}, a.log.Named("remoteindex"))
}

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "|",
			BarEnd:        "|",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}
