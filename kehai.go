// Package kehai is the public API for embedding the kehai presence daemon.
//
// kehai keeps a chat agent's displayed online status alive: a generated
// daily schedule drives the baseline, the assistant can override it through
// MCP tool calls, and inbound messages briefly wake it up. Consumers import
// this package to construct and extend the daemon without forking it:
//
//	app, err := kehai.New(
//	    kehai.WithVersion(version),
//	    kehai.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: kehai (root) imports
// internal/*, but internal/* never imports kehai (root). Public types (Slot,
// Status) are standalone structs with no internal imports; conversion
// helpers live here because this is the only file that sees both sides of
// the boundary.
package kehai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/kehai/internal/arbiter"
	"github.com/ashita-ai/kehai/internal/auth"
	"github.com/ashita-ai/kehai/internal/config"
	"github.com/ashita-ai/kehai/internal/history"
	"github.com/ashita-ai/kehai/internal/mcp"
	"github.com/ashita-ai/kehai/internal/onebot"
	"github.com/ashita-ai/kehai/internal/preset"
	"github.com/ashita-ai/kehai/internal/ratelimit"
	"github.com/ashita-ai/kehai/internal/schedule"
	"github.com/ashita-ai/kehai/internal/server"
	"github.com/ashita-ai/kehai/internal/status"
	"github.com/ashita-ai/kehai/internal/telemetry"
)

// App is the kehai daemon lifecycle. Construct with New(), run with Run().
// App has no public fields; use New() options to configure it.
type App struct {
	cfg          config.Config
	arb          *arbiter.Arbiter
	engine       *schedule.Engine
	adapter      *onebot.Adapter    // nil when a custom pusher replaces it
	hist         *history.DB        // nil when the history store failed to open
	limiter      *ratelimit.Limiter // nil when the webhook throttle is disabled
	srv          *server.Server
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initialises the daemon: loads configuration, wires the arbiter, the
// schedule engine, the backend adapter, and the HTTP/MCP surface. It does
// NOT start any goroutines or accept connections; call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.oneBotURL != "" {
		cfg.OneBotURL = o.oneBotURL
	}

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	presets, err := preset.LoadFile(cfg.PresetsPath)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}

	arb := arbiter.New(arbiter.Config{
		Presets:        presets,
		WakePreset:     cfg.WakePreset,
		InteractionTTL: cfg.InteractionTTL,
		OverrideTTL:    cfg.OverrideTTL,
	}, logger)

	app := &App{
		cfg:          cfg,
		arb:          arb,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}

	// Backend binding: the OneBot adapter unless a custom pusher replaces it.
	if o.pusher != nil {
		arb.BindPusher(pusherAdapter{o.pusher})
	} else {
		client, err := onebot.NewClient(onebot.ClientConfig{
			BaseURL:     cfg.OneBotURL,
			AccessToken: cfg.OneBotToken,
			Timeout:     cfg.CallTimeout,
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("onebot client: %w", err)
		}
		app.adapter = onebot.NewAdapter(client, onebot.AdapterConfig{
			Retries:     cfg.PushRetries,
			BaseDelay:   cfg.PushBaseDelay,
			MaxDelay:    cfg.PushMaxDelay,
			SettleDelay: cfg.SettleDelay,
			CacheTTL:    cfg.UserCacheTTL,
		}, logger)
		arb.BindPusher(app.adapter)
	}

	// Push history is best-effort: a failed open disables it but never
	// blocks presence updates.
	hist, err := history.Open(cfg.HistoryPath(), logger)
	if err != nil {
		logger.Warn("history store unavailable, auditing disabled", "error", err)
	} else {
		app.hist = hist
		arb.BindRecorder(hist)
	}

	store, err := schedule.NewStore(cfg.DataDir, logger)
	if err != nil {
		return nil, fmt.Errorf("schedule store: %w", err)
	}

	var gen schedule.Generator
	switch {
	case o.generator != nil:
		gen = generatorAdapter{o.generator}
	case cfg.LLMBaseURL != "":
		gen = schedule.NewLLMGenerator(schedule.LLMConfig{
			BaseURL: cfg.LLMBaseURL,
			APIKey:  cfg.LLMAPIKey,
			Model:   cfg.LLMModel,
			Persona: cfg.Persona,
		}, presets, logger)
	default:
		logger.Info("no schedule generator configured, running on time-of-day fallbacks")
	}

	app.engine = schedule.NewEngine(store, gen, arb, schedule.Config{
		Presets:      presets,
		SleepPresets: cfg.SleepPresets,
	}, logger)

	mcpSrv := mcp.New(arb, app.engine, presets, authorizerAdapter(o.authorizer), version, logger)

	if cfg.EventRate > 0 && cfg.EventBurst > 0 {
		app.limiter = ratelimit.New(cfg.EventRate, cfg.EventBurst)
	}

	srvCfg := server.Config{
		Arbiter:      arb,
		Engine:       app.engine,
		Presets:      presets,
		Verifier:     auth.NewVerifier(cfg.AdminTokenHash),
		Logger:       logger,
		Hist:         nilSafeHist(app.hist),
		MCPServer:    mcpSrv.MCPServer(),
		Limiter:      app.limiter,
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		Version:      version,
	}
	if app.adapter != nil {
		srvCfg.Reader = app.adapter
	}
	app.srv = server.New(srvCfg)

	return app, nil
}

// nilSafeHist avoids storing a typed nil in the server's interface field.
func nilSafeHist(h *history.DB) server.HistoryLister {
	if h == nil {
		return nil
	}
	return h
}

// Run starts the evaluation loop and the HTTP server, blocking until ctx is
// canceled or a component fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("kehai starting", "version", a.version, "port", a.cfg.Port)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.engine.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() {
			if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-gctx.Done():
		case err := <-errCh:
			return err
		}

		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.srv.Shutdown(shutCtx)
	})

	err := g.Wait()
	a.close()

	a.logger.Info("kehai stopped")
	return err
}

// close releases resources after the run loops have exited.
func (a *App) close() {
	a.arb.Shutdown()
	if a.adapter != nil {
		a.adapter.Close()
	}
	if a.hist != nil {
		_ = a.hist.Close()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	_ = a.otelShutdown(context.Background())
}

// generatorAdapter bridges the public ScheduleGenerator to the engine.
type generatorAdapter struct {
	g ScheduleGenerator
}

func (ga generatorAdapter) GenerateDaily(ctx context.Context, date time.Time) ([]schedule.Slot, error) {
	slots, err := ga.g.GenerateDaily(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]schedule.Slot, len(slots))
	for i, s := range slots {
		out[i] = schedule.Slot{
			Start:      s.Start,
			End:        s.End,
			StatusName: s.StatusName,
			Text:       s.Text,
			FaceName:   s.FaceName,
			Silent:     s.Silent,
		}
	}
	return out, nil
}

// authorizerAdapter bridges the public OverrideAuthorizer to the MCP layer,
// mapping a nil option to a nil (accept-all) gate without a typed-nil
// interface value.
func authorizerAdapter(a OverrideAuthorizer) mcp.Authorizer {
	if a == nil {
		return nil
	}
	return a
}

// pusherAdapter bridges the public StatusPusher to the arbiter.
type pusherAdapter struct {
	p StatusPusher
}

func (pa pusherAdapter) Push(ctx context.Context, target status.Status) bool {
	return pa.p.Push(ctx, Status{
		Kind:     string(target.Kind),
		Origin:   string(target.Origin),
		MainCode: target.MainCode,
		ExtCode:  target.ExtCode,
		IconID:   target.IconID,
		Text:     target.Text,
		Silent:   target.Silent,
	})
}
