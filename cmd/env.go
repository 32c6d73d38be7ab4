package main

import (
	"context"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hvac-targets/internal/config"
	"github.com/sells-group/hvac-targets/internal/pipeline"
	"github.com/sells-group/hvac-targets/internal/research"
	"github.com/sells-group/hvac-targets/internal/scoring"
	"github.com/sells-group/hvac-targets/internal/sources"
	"github.com/sells-group/hvac-targets/internal/store"
	"github.com/sells-group/hvac-targets/pkg/anthropic"
	"github.com/sells-group/hvac-targets/pkg/google"
	"github.com/sells-group/hvac-targets/pkg/notion"
	"github.com/sells-group/hvac-targets/pkg/perplexity"
	"github.com/sells-group/hvac-targets/pkg/salesforce"
)

// closableStore is a Store that owns a connection.
type closableStore interface {
	store.Store
	Close() error
}

// initStore opens the configured backend and applies the schema.
func initStore(ctx context.Context, c *config.Config) (closableStore, error) {
	var (
		st  closableStore
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// initEngine builds the scoring engine from the optional override file.
func initEngine(c *config.Config) (*scoring.Engine, error) {
	sc, err := scoring.LoadConfig(c.Scoring.ConfigPath)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("scoring config loaded",
		zap.String("version", sc.Version),
		zap.String("path", c.Scoring.ConfigPath),
	)
	return scoring.NewEngine(sc), nil
}

// initEnricher returns nil when no Perplexity key is configured.
func initEnricher(c *config.Config) *sources.Enricher {
	if c.Perplexity.Key == "" {
		return nil
	}
	client := perplexity.NewClient(c.Perplexity.Key,
		perplexity.WithBaseURL(c.Perplexity.BaseURL),
		perplexity.WithModel(c.Perplexity.Model),
		perplexity.WithRateLimit(c.Perplexity.RateLimit),
	)
	var opts []sources.EnricherOption
	if c.Google.Key != "" {
		opts = append(opts, sources.WithPlaces(google.NewClient(c.Google.Key, google.WithRateLimit(c.Google.RateLimit))))
	}
	return sources.NewEnricher(client, sources.WebsiteConfig{
		Timeout:   time.Duration(c.Sources.WebsiteTimeoutSecs) * time.Second,
		Retries:   c.Sources.WebsiteRetries,
		UserAgent: c.Sources.UserAgent,
	}, opts...)
}

// initPipeline wires the orchestrator. Without an Anthropic key the
// orchestrator can still score and enrich, but research jobs fail at
// discovery.
func initPipeline(st store.Store, c *config.Config, extra ...pipeline.Option) (*pipeline.Orchestrator, error) {
	engine, err := initEngine(c)
	if err != nil {
		return nil, err
	}

	var backend research.Backend = unconfiguredBackend{}
	if c.Anthropic.Key != "" {
		backend = research.NewAnthropicBackend(anthropic.NewClient(c.Anthropic.Key), c.Anthropic.Model, c.Anthropic.MaxTokens)
	}

	var opts []pipeline.Option
	if e := initEnricher(c); e != nil {
		opts = append(opts, pipeline.WithEnricher(e))
	}
	opts = append(opts, extra...)
	return pipeline.New(st, backend, engine, pipeline.ConfigFrom(c.Research), opts...), nil
}

// unconfiguredBackend fails every submission with a configuration error.
type unconfiguredBackend struct{}

func (unconfiguredBackend) Submit(context.Context, research.Prompt) (research.TaskHandle, error) {
	return research.TaskHandle{}, eris.New("research backend is not configured (HVAC_ANTHROPIC_KEY)")
}

func (unconfiguredBackend) Status(context.Context, research.TaskHandle) (research.TaskStatus, error) {
	return research.TaskFailed, nil
}

func (unconfiguredBackend) Result(context.Context, research.TaskHandle) (string, error) {
	return "", eris.New("research backend is not configured")
}

func initNotion(c *config.Config) notion.Client {
	return notion.NewClient(c.Notion.Token)
}

func initSalesforce(c *config.Config) (salesforce.Client, error) {
	pemData, err := os.ReadFile(c.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}
	return salesforce.Connect(c.Salesforce.LoginURL, c.Salesforce.Username, c.Salesforce.ClientID, string(pemData))
}
