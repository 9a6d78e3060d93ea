// Package app assembles the backend's components from configuration and runs
// them.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/xuegao65/agent-back/internal/agent"
	"github.com/xuegao65/agent-back/internal/bot"
	"github.com/xuegao65/agent-back/internal/catalog"
	"github.com/xuegao65/agent-back/internal/config"
	"github.com/xuegao65/agent-back/internal/gateway"
	"github.com/xuegao65/agent-back/internal/handler"
	"github.com/xuegao65/agent-back/internal/jobs"
	"github.com/xuegao65/agent-back/internal/llm"
	"github.com/xuegao65/agent-back/internal/model"
	natsclient "github.com/xuegao65/agent-back/internal/nats"
	"github.com/xuegao65/agent-back/internal/service"
	"github.com/xuegao65/agent-back/internal/store"
	"github.com/xuegao65/agent-back/internal/twitter"
	"github.com/xuegao65/agent-back/pkg/logger"
	"github.com/xuegao65/agent-back/pkg/tracing"
)

const serviceName = "agent-back"

// EventPublisher records lifecycle events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, event *model.AgentEvent) error
}

// App owns the long-lived handles shared by every component.
type App struct {
	cfg *config.Config
	log *logger.Logger

	store   *store.Store
	nats    *natsclient.Client
	streams *natsclient.StreamManager
	events  EventPublisher
	queue   jobs.Queue
	tracer  *sdktrace.TracerProvider

	catalog *catalog.Catalog
}

// New opens the store and optional infrastructure. Only a store failure is
// fatal; NATS and tracing degrade to disabled.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, events: natsclient.NopPublisher{}}

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			a.tracer = tp
		}
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st

	if cfg.NATSURL != "" {
		nc, err := natsclient.Connect(ctx, cfg.NATSURL, log)
		if err != nil {
			log.Warn("failed to connect to NATS, events disabled", zap.Error(err))
		} else {
			streams := natsclient.NewStreamManager(nc)
			if err := streams.EnsureStream(ctx); err != nil {
				log.Warn("failed to ensure event stream, events disabled", zap.Error(err))
				nc.Close()
			} else {
				a.nats = nc
				a.streams = streams
				a.events = streams
			}
		}
	}

	a.catalog = catalog.New(st, cfg.TokenListURL, log)
	return a, nil
}

// Close releases every handle New opened.
func (a *App) Close() {
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.log.Warn("failed to close job queue", zap.Error(err))
		}
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("failed to close store", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := tracing.Shutdown(context.Background(), a.tracer); err != nil {
			a.log.Warn("failed to flush traces", zap.Error(err))
		}
	}
}

// RefreshTokens runs one catalog refresh and announces the result.
func (a *App) RefreshTokens(ctx context.Context) error {
	res, err := a.catalog.Refresh(ctx)
	if err != nil {
		return err
	}
	if err := a.events.PublishEvent(ctx, &model.AgentEvent{
		Type: model.EventTokensRefreshed,
		Metadata: map[string]string{
			"fetched":  strconv.Itoa(res.Fetched),
			"skipped":  strconv.Itoa(res.Skipped),
			"affected": strconv.FormatInt(res.Affected, 10),
		},
	}); err != nil {
		a.log.Warn("failed to publish event", zap.String("type", string(model.EventTokensRefreshed)), zap.Error(err))
	}
	return nil
}

// openQueue uses Redis when configured and an in-process queue otherwise.
func (a *App) openQueue(ctx context.Context) (jobs.Queue, error) {
	if a.queue != nil {
		return a.queue, nil
	}
	if a.cfg.RedisURL == "" {
		a.queue = jobs.NewMemoryQueue(16)
		return a.queue, nil
	}
	q, err := jobs.NewRedisQueue(ctx, a.cfg.RedisURL, "")
	if err != nil {
		return nil, err
	}
	a.queue = q
	return q, nil
}

func (a *App) newWorker(q jobs.Consumer) *jobs.Worker {
	w := jobs.NewWorker(q, jobs.DefaultTimeout, a.log)
	w.Register(jobs.JobRefreshTokens, a.RefreshTokens)
	return w
}

// RunWorker consumes queued jobs until ctx ends.
func (a *App) RunWorker(ctx context.Context) error {
	q, err := a.openQueue(ctx)
	if err != nil {
		return err
	}
	return a.newWorker(q).Run(ctx)
}

func (a *App) newAgent() (*agent.Agent, error) {
	apiKey := a.cfg.OpenAIAPIKey
	if llm.Provider(a.cfg.LLMProvider) == llm.ProviderAnthropic {
		apiKey = a.cfg.AnthropicAPIKey
	}
	client, err := llm.NewClient(llm.Provider(a.cfg.LLMProvider), apiKey, a.cfg.LLMModel)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	gw := gateway.New(a.catalog, a.cfg.ActionAPIURL, a.cfg.ActionAPISecret, a.log)
	return agent.New(client, gw, a.store, agent.Config{
		Model:        a.cfg.LLMModel,
		HistoryTurns: a.cfg.HistoryContextTurns,
	}, a.log), nil
}

func (a *App) readyChecks() map[string]handler.Check {
	checks := map[string]handler.Check{
		"database": a.store.Ping,
	}
	if a.streams != nil {
		checks["nats"] = a.streams.Ping
	}
	if rq, ok := a.queue.(*jobs.RedisQueue); ok {
		checks["redis"] = rq.Ping
	}
	return checks
}

// Serve runs the HTTP API with the refresh scheduler, an embedded worker and
// the mention bot when enabled. It returns once ctx is cancelled and the
// server has drained.
func (a *App) Serve(ctx context.Context) error {
	ag, err := a.newAgent()
	if err != nil {
		return err
	}
	q, err := a.openQueue(ctx)
	if err != nil {
		return err
	}

	conversations := service.NewConversationService(a.store, a.events, a.log)
	messages := service.NewMessageService(conversations, ag, a.log)
	history := service.NewHistoryService(a.store, a.log)

	stream := handler.NewStreamHandler(conversations, messages, a.cfg.StreamPacing, a.log)
	router := handler.NewRouter(handler.RouterConfig{
		Chat:              handler.NewChatHandler(conversations, a.log),
		Stream:            stream,
		History:           handler.NewHistoryHandler(history),
		RPC:               handler.NewRPCHandler(a.cfg.SolanaRPCURL, nil, a.log),
		Health:            handler.NewHealthHandler(a.readyChecks()),
		AuthSecret:        a.cfg.AuthSecret,
		AuthIssuer:        a.cfg.AuthIssuerURL,
		CORSOrigins:       a.cfg.CORSOrigins,
		RateLimitRequests: a.cfg.RateLimitRequests,
		RateLimitWindow:   a.cfg.RateLimitWindow,
		Logger:            a.log,
	})

	server := a.newServer(ctx, router)

	go func() {
		if err := a.RefreshTokens(ctx); err != nil {
			a.log.Error("initial token refresh failed", zap.Error(err))
		}
	}()
	go jobs.NewScheduler(q, jobs.JobRefreshTokens, a.cfg.TokenRefreshInterval, a.log).Run(ctx)
	go func() {
		if err := a.newWorker(q).Run(ctx); err != nil {
			a.log.Error("worker stopped", zap.Error(err))
		}
	}()

	if a.cfg.BotEnabled {
		if err := a.startBot(ctx, ag); err != nil {
			a.log.Error("mention bot disabled", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server listening", zap.String("port", a.cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	stream.Wait()
	a.log.Info("server stopped")
	return nil
}

// newServer builds the HTTP server. Request contexts derive from ctx, so
// open streams end when ctx is cancelled instead of holding up Shutdown.
func (a *App) newServer(ctx context.Context, h http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + a.cfg.ServerPort,
		Handler:      h,
		ReadTimeout:  a.cfg.ServerReadTimeout,
		WriteTimeout: a.cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func (a *App) startBot(ctx context.Context, ag *agent.Agent) error {
	tw := a.cfg.Twitter
	x := twitter.New(ctx, twitter.Credentials{
		BearerToken:    tw.BearerToken,
		ConsumerKey:    tw.ConsumerKey,
		ConsumerSecret: tw.ConsumerSecret,
		AccessToken:    tw.AccessToken,
		AccessSecret:   tw.AccessSecret,
	})

	b, err := bot.New(ctx, x, ag, a.store, a.events, bot.Config{
		Interval: a.cfg.BotPollInterval,
		MaxReads: a.cfg.BotMaxReads,
		MaxPosts: a.cfg.BotMaxPosts,
	}, a.log)
	if err != nil {
		return err
	}
	go b.Run(ctx)
	return nil
}
