package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/apiclient"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/events"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/httpapi"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/storage"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/task"
	"github.com/MarkoPoloResearchLab/chatbotwidget/internal/widget"
)

const (
	openStorageErrorMessage = "open storage"
	logEventLimitersPruned  = "rate_limiters_pruned"
	logFieldPrunedCount     = "pruned"
)

// serverRuntime is the assembled host: router, session registry and the background sweep.
type serverRuntime struct {
	router         *gin.Engine
	registry       *httpapi.SessionRegistry
	rateLimiters   *httpapi.ClientRateLimiters
	sweepScheduler *task.Scheduler
	backend        storage.Backend
	logger         *zap.Logger
}

func buildServerRuntime(ctx context.Context, serverConfig ServerConfig, backendOpener BackendOpener, logger *zap.Logger) (*serverRuntime, error) {
	backend, backendErr := backendOpener(ctx, storage.BackendConfig{Driver: serverConfig.StorageDriver, DSN: serverConfig.StorageDSN})
	if backendErr != nil {
		return nil, fmt.Errorf("%s: %w", openStorageErrorMessage, backendErr)
	}

	metrics := httpapi.NewMetrics()
	upstreamTimeout := serverConfig.UpstreamTimeout
	registry := httpapi.NewSessionRegistry(httpapi.SessionRegistryConfig{
		Backend: backend,
		APIFactory: func(baseURL string, notices *events.NoticeBus) (widget.ChatbotAPI, error) {
			return apiclient.New(apiclient.Config{
				BaseURL: baseURL,
				Timeout: upstreamTimeout,
				Logger:  logger,
				Notices: notices,
			})
		},
		DefaultAPIURL:  serverConfig.ChatbotAPIURL,
		AllowedAPIURLs: serverConfig.AllowedAPIURLs,
		ReplyDelay:     serverConfig.ReplyDelay,
		Logger:         logger,
		Metrics:        metrics,
	})
	rateLimiters := httpapi.NewClientRateLimiters(serverConfig.SendRatePerSecond, serverConfig.SendRateBurst)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Logger:        logger,
		Registry:      registry,
		CookieStore:   httpapi.NewClientCookieStore(serverConfig.SessionSecret),
		RateLimiters:  rateLimiters,
		Metrics:       metrics,
		PublicBaseURL: serverConfig.PublicBaseURL,
	})

	runtime := &serverRuntime{
		router:       router,
		registry:     registry,
		rateLimiters: rateLimiters,
		backend:      backend,
		logger:       logger,
	}
	runtime.sweepScheduler = task.NewScheduler(serverConfig.SweepInterval, runtime.sweepRunner(serverConfig.SessionIdleTTL, time.Now))
	return runtime, nil
}

// sweepRunner evicts idle sessions and forgets the rate limiters of visitors gone for as long.
func (runtime *serverRuntime) sweepRunner(idleTTL time.Duration, clock func() time.Time) task.RunnerFunc {
	evictIdleSessions := task.NewIdleSessionSweep(runtime.registry, idleTTL, clock, runtime.logger)
	return func(ctx context.Context) {
		evictIdleSessions(ctx)
		if pruned := runtime.rateLimiters.Prune(clock().Add(-idleTTL)); pruned > 0 {
			runtime.logger.Debug(logEventLimitersPruned, zap.Int(logFieldPrunedCount, pruned))
		}
	}
}

func (runtime *serverRuntime) Close() {
	runtime.sweepScheduler.Stop()
	runtime.registry.Close()
	if closeErr := runtime.backend.Close(); closeErr != nil {
		runtime.logger.Warn("close_storage_failed", zap.Error(closeErr))
	}
}
