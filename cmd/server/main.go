package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/lucijabrocic/digit-recognizer/internal/canvas"
	"github.com/lucijabrocic/digit-recognizer/internal/cfg"
	"github.com/lucijabrocic/digit-recognizer/internal/handlers"
	"github.com/lucijabrocic/digit-recognizer/internal/metrics"
	"github.com/lucijabrocic/digit-recognizer/internal/model"
	"github.com/lucijabrocic/digit-recognizer/internal/page"
	"github.com/lucijabrocic/digit-recognizer/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func setupLogging(settings cfg.Settings) {
	level, err := zerolog.ParseLevel(settings.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !strings.EqualFold(settings.LogFormat, "json") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	settings, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogging(settings)

	metadata, err := model.LoadMetadata(settings.MetadataPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load model metadata")
	}

	m := metrics.New()

	loaderOpts := []model.LoaderOption{model.WithMetrics(m)}
	if settings.CachePath != "" {
		store, err := storage.New(settings.CachePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", settings.CachePath).Msg("Failed to open model cache")
		}
		defer store.Close()
		loaderOpts = append(loaderOpts, model.WithCache(store))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader := model.NewLoader(model.LoaderConfig{
		URL:          settings.ModelURL,
		FetchTimeout: settings.FetchTimeout,
		Open: model.OpenOptions{
			Backend:        settings.ModelBackend,
			Metadata:       metadata,
			OnnxRuntimeLib: settings.OnnxRuntimeLib,
		},
	}, loaderOpts...)
	loader.Start(ctx)
	defer loader.Close()

	canvasOpts := canvas.DefaultOptions()
	canvasOpts.Width = settings.CanvasWidth
	canvasOpts.Height = settings.CanvasHeight
	canvasOpts.BrushWidth = settings.BrushWidth

	handler := handlers.NewHandler(loader, metadata, page.Config{Canvas: canvasOpts, TopK: settings.TopK}, m)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	port := strconv.Itoa(settings.Port)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("port", port).
		Str("model", settings.ModelURL).
		Str("backend", settings.ModelBackend).
		Msg("Server starting")
	log.Info().Msg("Endpoints: GET / (page), GET /ws, GET /health, POST /predict, POST /predict/image, GET /metrics")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
	log.Info().Msg("Server stopped")
}
