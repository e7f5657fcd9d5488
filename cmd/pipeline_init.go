package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/intake-cli/internal/clarify"
	"github.com/sells-group/intake-cli/internal/docstore"
	"github.com/sells-group/intake-cli/internal/extract"
	"github.com/sells-group/intake-cli/internal/progress"
	"github.com/sells-group/intake-cli/internal/resilience"
	"github.com/sells-group/intake-cli/internal/session"
	"github.com/sells-group/intake-cli/internal/store"
	anthropicpkg "github.com/sells-group/intake-cli/pkg/anthropic"
)

// pipelineEnv holds the initialized store, document source, analyzer, and
// session manager needed by the ingest/serve commands.
type pipelineEnv struct {
	Store    store.Store // may be nil when driver is "none"
	Manager  *session.Manager
	Clarify  *clarify.Manager
	Analyzer *extract.AnthropicAnalyzer
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initStore opens the configured database backend and runs migrations.
func initStore(ctx context.Context) (store.Store, error) {
	var st store.Store
	var err error

	switch cfg.Store.Driver {
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	zap.L().Info("store ready", zap.String("driver", cfg.Store.Driver))
	return st, nil
}

// initDocstore picks the document source: FTP when configured, otherwise the
// local filesystem root.
func initDocstore(retry resilience.RetryConfig, breaker *resilience.CircuitBreaker) (docstore.Store, error) {
	if cfg.Documents.FTPURL != "" {
		return docstore.NewFTPStore(docstore.FTPOptions{
			URL:      cfg.Documents.FTPURL,
			User:     cfg.Documents.FTPUser,
			Password: cfg.Documents.FTPPassword,
			Timeout:  time.Duration(cfg.Documents.FTPTimeout) * time.Second,
			Retry:    retry,
			Breaker:  breaker,
		})
	}
	return docstore.NewLocalStore(cfg.Documents.Root), nil
}

// initPipeline sets up the store, document source, Anthropic analyzer, and
// session manager. Callers should defer env.Close().
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	retryCfg := resilience.FromRetryConfig(
		cfg.Resilience.MaxAttempts,
		cfg.Resilience.InitialBackoffMs,
		cfg.Resilience.MaxBackoffMs,
		cfg.Resilience.BackoffMultiplier,
		cfg.Resilience.JitterFraction,
	)
	breakers := resilience.NewServiceBreakers(resilience.FromCircuitConfig(
		cfg.Resilience.FailureThreshold,
		cfg.Resilience.ResetTimeoutSecs,
	))

	docs, err := initDocstore(retryCfg, breakers.Get("ftp"))
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	benchmarks, err := clarify.LoadBenchmarks(cfg.Pipeline.BenchmarksPath)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	analyzer := extract.NewAnthropicAnalyzer(anthropicClient, extract.AnalyzerConfig{
		Model:     cfg.Anthropic.Model,
		MaxTokens: cfg.Anthropic.MaxTokens,
		RateRPS:   cfg.Anthropic.RateRPS,
		RateBurst: cfg.Anthropic.RateBurst,
		Retry:     retryCfg,
		Breaker:   breakers.Get("anthropic"),
	})

	clarMgr := clarify.NewManager(clarify.Options{
		BlockingThreshold:    cfg.Pipeline.BlockingThreshold,
		AutoResolveThreshold: cfg.Pipeline.AutoResolveThreshold,
		Benchmarks:           benchmarks,
		Store:                st,
	})

	bridge := progress.NewBridge(cfg.Pipeline.EventBufferSize)
	extractor := extract.New(docs, analyzer)

	mgr := session.NewManager(session.Config{
		PausePolicy:   cfg.Pipeline.PausePolicy,
		MaxConcurrent: int64(cfg.Pipeline.MaxConcurrentSessions),
		SessionTTL:    time.Duration(cfg.Pipeline.SessionTTLMinutes) * time.Minute,
	}, extractor, clarMgr, bridge, st)

	zap.L().Info("pipeline ready",
		zap.String("model", cfg.Anthropic.Model),
		zap.String("pause_policy", cfg.Pipeline.PausePolicy),
		zap.Int("benchmarks", len(benchmarks)),
	)

	return &pipelineEnv{
		Store:    st,
		Manager:  mgr,
		Clarify:  clarMgr,
		Analyzer: analyzer,
	}, nil
}
