package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/skazkalab/fairytale-engine/internal/audio"
	"github.com/skazkalab/fairytale-engine/internal/audio/audioimpl"
	"github.com/skazkalab/fairytale-engine/internal/auth"
	"github.com/skazkalab/fairytale-engine/internal/auth/authimpl"
	"github.com/skazkalab/fairytale-engine/internal/authapi"
	"github.com/skazkalab/fairytale-engine/internal/authapi/authapiimpl"
	"github.com/skazkalab/fairytale-engine/internal/config"
	"github.com/skazkalab/fairytale-engine/internal/credentials"
	"github.com/skazkalab/fairytale-engine/internal/engine"
	"github.com/skazkalab/fairytale-engine/internal/engine/engineimpl"
	"github.com/skazkalab/fairytale-engine/internal/ratelimit"
	repositories "github.com/skazkalab/fairytale-engine/internal/repositories/fx"
	"github.com/skazkalab/fairytale-engine/internal/storyapi"
	"github.com/skazkalab/fairytale-engine/internal/storyapi/storyapiimpl"
	"github.com/skazkalab/fairytale-engine/internal/voiceapi"
	"github.com/skazkalab/fairytale-engine/internal/voiceapi/voiceapiimpl"
	"github.com/skazkalab/fairytale-engine/pkg/logger"
	"go.uber.org/fx"
)

var App = fx.Options(
	fx.Provide(
		config.New,
		logger.FxOption,
	),
	credentials.Module,
	repositories.Module,
	fx.Provide(
		fx.Annotate(
			authapiimpl.New,
			fx.As(new(authapi.Client)),
		),
		fx.Annotate(
			authimpl.New,
			fx.As(new(auth.Manager)),
			fx.As(new(storyapi.TokenSource)),
			fx.As(new(voiceapi.TokenSource)),
		),
		fx.Annotate(
			storyapiimpl.New,
			fx.As(new(storyapi.Client)),
		),
		fx.Annotate(
			voiceapiimpl.New,
			fx.As(new(voiceapi.Client)),
		),
		newTapLimiter,
		fx.Annotate(
			engineimpl.New,
			fx.As(new(engine.Client)),
		),
		fx.Annotate(
			audioimpl.New,
			fx.As(new(audio.Controller)),
		),
	),
	fx.Invoke(run),
)

// newTapLimiter throttles the "new story" button per user so rapid taps
// cannot stampede the backend.
func newTapLimiter(cfg *config.Config) ratelimit.Limiter {
	return ratelimit.NewInMemoryLimiter(1, cfg.Engine.TapInterval, cfg.Engine.TapBurst)
}

func run(lc fx.Lifecycle, log logger.Logger, cfg *config.Config,
	authManager auth.Manager, audioController audio.Controller) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go startHttpServer(log, cfg)

			// Opportunistic check at startup, then on a schedule.
			if _, err := authManager.CheckTokenExpiry(ctx); err != nil {
				log.Warn("Startup token check failed", "error", err)
			}
			if err := authManager.ScheduleExpiryCheck(ctx); err != nil {
				log.Error("Failed to schedule token expiry checks", "error", err)
				return err
			}

			audioController.SetStateListener(func(s audio.PlaybackState) {
				log.Debug("Playback state changed",
					"is_playing", s.IsPlaying,
					"is_paused", s.IsPaused,
				)
			})

			return nil
		},
		OnStop: func(context.Context) error {
			audioController.Stop()
			cancel()
			return nil
		},
	})
}

func startHttpServer(log logger.Logger, cfg *config.Config) {
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		healthCheckHandler(w, r, log)
	})

	log.Info(fmt.Sprintf("Starting server on :%d", cfg.App.Port))

	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.App.Port), nil); err != nil {
		log.Error("Server failed to start: %v", err)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request, logger logger.Logger) {
	logger.Info("Health check request received", "Method", r.Method, "URL", r.URL.String())
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("ok")); err != nil {
		logger.Error("Failed to write response", "Error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
