package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Avatar/internal/adapters/heygen"
	router "github.com/dkeye/Avatar/internal/adapters/http"
	"github.com/dkeye/Avatar/internal/adapters/rtc"
	wssignal "github.com/dkeye/Avatar/internal/adapters/signal"
	"github.com/dkeye/Avatar/internal/app/avatar"
	"github.com/dkeye/Avatar/internal/app/media"
	"github.com/dkeye/Avatar/internal/config"
	"github.com/dkeye/Avatar/internal/domain"
	transport "github.com/dkeye/Avatar/internal/transport/http"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping info")
	}
	if !cfg.HasAPIKey() {
		log.Warn().Msg("HeyGen API key is not configured, sessions will fail to open")
	}

	quality, err := domain.ParseQuality(cfg.HeyGen.Quality)
	if err != nil {
		log.Fatal().Err(err).Msg("bad heygen.quality")
	}

	endpoints, err := rtc.NewFactory()
	if err != nil {
		log.Fatal().Err(err).Msg("webrtc api")
	}

	binder := media.NewBinder()
	if cfg.Media.RecordDir != "" {
		rec, err := media.NewRecorder(cfg.Media.RecordDir)
		if err != nil {
			log.Fatal().Err(err).Msg("media recorder")
		}
		rec.Attach(binder)
		log.Info().Str("dir", cfg.Media.RecordDir).Msg("recording avatar sessions")
	}
	ctrl := avatar.NewController(avatar.Options{
		API:        heygen.NewClient(cfg.HeyGen.BaseURL, cfg.HeyGen.RequestTimeout),
		Endpoints:  endpoints,
		Binder:     binder,
		Credential: cfg.HeyGen.APIKey,
		Selection: domain.AvatarSelection{
			AvatarName: cfg.HeyGen.AvatarName,
			VoiceID:    cfg.HeyGen.VoiceID,
			Quality:    quality,
		},
		FallbackServers: []webrtc.ICEServer{{URLs: cfg.RTC.FallbackICEURLs}},
		TeardownTimeout: cfg.Teardown.Timeout,
	})

	limiter := wssignal.NewRateLimiter(cfg.Speak.RateLimit, cfg.Speak.RateInterval)
	ws := wssignal.NewSignalWSController(ctx, ctrl, wssignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		Limiter:    limiter,
	})
	go ws.Run(ctx)

	r := router.SetupRouter(cfg, transport.NewHandlers(ctx, ctrl, limiter), ws)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Avatar server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	ctrl.Shutdown()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
