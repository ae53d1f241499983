package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"peercall/internal/config"
	"peercall/internal/hub"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var listen, iceFile, logLevel string

	flagSet := pflag.NewFlagSet("peercall-relay", pflag.ContinueOnError)
	flagSet.StringVar(&listen, "listen", "", "address to listen on (default :8080)")
	flagSet.StringVar(&iceFile, "ice-file", "", "YAML file with the ICE servers published on /ice")
	flagSet.StringVar(&logLevel, "log-level", "", "log level")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	if iceFile != "" {
		if err := cfg.LoadICEFile(iceFile); err != nil {
			return err
		}
	}
	if logLevel != "" {
		if err := cfg.SetLogLevel(logLevel); err != nil {
			return err
		}
	}

	zerolog.SetGlobalLevel(cfg.LogLevel)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
	}).With().Timestamp().Logger()

	h := hub.New(cfg.PingInterval, hub.WithICEServers(cfg.ICEServers))
	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("relay listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
