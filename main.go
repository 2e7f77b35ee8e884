package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"taskboard/api"
	"taskboard/board"
	"taskboard/config"
	"taskboard/httpclient"
	"taskboard/storage"
)

func main() {
	configPath := flag.StringP("config", "c", os.Getenv("TASKBOARD_CONFIG"), "path to a YAML or JSONC config file")
	listen := flag.String("listen", "", "listen address, overrides the config file")
	debug := flag.Bool("debug", false, "enable debug logging and pprof routes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *debug {
		cfg.Debug = true
	}

	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := storage.Open(ctx, cfg.Storage.Options())
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer closeKV()

	fetcher := httpclient.New(cfg.Source.URL, cfg.Source.Token, time.Duration(cfg.Source.Timeout))
	store := board.New(fetcher, kv, logger, cfg.BoardConfig())
	defer store.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.StartupFetchTimeout))
	if err := store.FetchData(fetchCtx); err != nil {
		logger.WithError(err).Warn("initial task data load failed; POST /api/fetch retries")
	}
	cancel()

	auth, err := newAuth(cfg.Auth)
	if err != nil {
		logger.Fatalf("auth: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	// Keep a nil *api.Auth from becoming a non-nil Authenticator.
	if auth != nil {
		api.Register(e, store, auth, logger)
	} else {
		api.Register(e, store, nil, logger)
	}
	if cfg.Debug {
		pprof.Register(e)
	}

	go func() {
		if err := e.Start(cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server: %v", err)
		}
	}()
	logger.WithFields(log.Fields{"listen": cfg.Listen, "storage": cfg.Storage.Backend}).Info("taskboard started")

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("shutdown")
	}
}

func newLogger(cfg config.Config) *log.Logger {
	logger := log.New()
	if cfg.Debug {
		logger.SetLevel(log.DebugLevel)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	}
	return logger
}

// newAuth returns nil when authentication is disabled.
func newAuth(cfg config.AuthConfig) (*api.Auth, error) {
	switch {
	case cfg.Secret != "":
		return api.NewHMACAuth([]byte(cfg.Secret), cfg.Audience, cfg.Issuer), nil
	case cfg.Domain != "":
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			return nil, fmt.Errorf("jwks: %w", err)
		}
		issuer := cfg.Issuer
		if issuer == "" {
			issuer = "https://" + cfg.Domain + "/"
		}
		return api.NewJWKSAuth(jwks, cfg.Audience, issuer, time.Duration(cfg.JWKSCacheTTL)), nil
	default:
		return nil, nil
	}
}
