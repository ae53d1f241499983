package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"peercall/internal/api"
	"peercall/internal/config"
	"peercall/internal/domain"
	"peercall/internal/negotiation"
	"peercall/internal/session"
	sigclient "peercall/internal/signal"
	"peercall/internal/webrtc"
)

const helpText = `peercall - audio/video calls between participants of a relay

Usage:
  peercall [options]

Commands are read from standard input:
  login <name>    connect to the relay as <name>
  list            show participants (* = selected)
  toggle <name>   select or deselect a participant
  call            call every selected participant
  hangup          end the current call
  logout          disconnect from the relay
  quit            exit

Environment Variables:
  PEERCALL_NAME             log in as this name at startup
  PEERCALL_RELAY_URL        relay websocket URL (default ws://localhost:8080/websocket)
  PEERCALL_STUN             comma separated STUN URLs
  PEERCALL_ICE_FILE         YAML file with ICE servers and credentials
  PEERCALL_ICE_URL          fetch ICE servers from a relay's /ice endpoint
  PEERCALL_GATHER_TIMEOUT   candidate gathering timeout (default 15s)
  PEERCALL_PING_INTERVAL    relay keepalive interval (default 30s)
  PEERCALL_LOG_LEVEL        trace, debug, info, warn, error (default info)

Options:
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var name, relayURL, iceFile, iceURL, logLevel string
	var audioOnly bool

	flagSet := pflag.NewFlagSet("peercall", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "log in as this name at startup")
	flagSet.StringVar(&relayURL, "relay", "", "relay websocket URL")
	flagSet.StringVar(&iceFile, "ice-file", "", "YAML file with ICE servers")
	flagSet.StringVar(&iceURL, "ice-url", "", "fetch ICE servers from this URL")
	flagSet.StringVar(&logLevel, "log-level", "", "log level")
	flagSet.BoolVar(&audioOnly, "audio-only", false, "do not send video")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if name != "" {
		cfg.Name = name
	}
	if relayURL != "" {
		cfg.RelayURL = relayURL
	}
	if iceFile != "" {
		if err := cfg.LoadICEFile(iceFile); err != nil {
			return err
		}
	}
	if iceURL != "" {
		cfg.ICEURL = iceURL
	}
	if logLevel != "" {
		if err := cfg.SetLogLevel(logLevel); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	setupLogging(cfg.LogLevel)

	if cfg.ICEURL != "" {
		log.Info().Str("url", cfg.ICEURL).Msg("fetching ICE servers")
		servers, err := api.NewClient().FetchICEServers(context.Background(), cfg.ICEURL)
		if err != nil {
			return fmt.Errorf("fetch ICE servers: %w", err)
		}
		cfg.ICEServers = servers
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	factory, err := webrtc.NewFactory()
	if err != nil {
		return fmt.Errorf("create peer factory: %w", err)
	}

	ui := newConsole(os.Stdout)
	var sess *session.Session
	engine := negotiation.NewEngine(factory, webrtc.NewSource(),
		negotiation.WithICEServers(cfg.ICEServers),
		negotiation.WithGatherTimeout(cfg.GatherTimeout),
		negotiation.WithConstraints(domain.MediaConstraints{Audio: true, Video: !audioOnly}),
		negotiation.WithStateObserver(func(s negotiation.State) { sess.OnStateChanged(s.String()) }),
	)
	dial := func(h domain.Handler) domain.Relay {
		return sigclient.NewClient(cfg.RelayURL, cfg.PingInterval, h)
	}
	sess = session.New(dial, engine, ui)
	defer func() {
		sess.Logout()
		engine.Hangup()
	}()

	if cfg.Name != "" {
		if err := sess.Login(ctx, cfg.Name); err != nil {
			ui.printf("login failed: %v", err)
		}
	} else {
		ui.printf("type 'login <name>' to start, 'help' for commands")
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := ui.handle(ctx, sess, line); quit {
				return nil
			}
		}
	}
}

func setupLogging(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.TimeOnly,
	}).With().Timestamp().Logger()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprint(os.Stderr, helpText)
	flagSet.PrintDefaults()
}
