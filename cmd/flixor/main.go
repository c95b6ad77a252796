package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/flixor/flixor/internal/cache"
	"github.com/flixor/flixor/internal/config"
	"github.com/flixor/flixor/internal/core"
	"github.com/flixor/flixor/internal/log"
	"github.com/flixor/flixor/internal/playback"
	"github.com/flixor/flixor/internal/player"
	"github.com/flixor/flixor/internal/provider/plex"
	"github.com/flixor/flixor/internal/storage"
	"github.com/flixor/flixor/internal/streaming"
	"github.com/flixor/flixor/internal/tui"
	"github.com/flixor/flixor/internal/tui/styles"
)

// Version is set at build time via -ldflags
var Version = "dev"

// clearSpinnerLine clears the spinner line from the terminal
const clearSpinnerLine = "\r                                    \r"

func main() {
	var showVersion bool
	var tokenAuth bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.BoolVar(&tokenAuth, "token", false, "sign in with an account token instead of device linking")
	flag.Parse()

	if showVersion {
		fmt.Printf("flixor %s\n", Version)
		return
	}

	if err := run(tokenAuth); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(tokenAuth bool) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)

	logger.Info("starting flixor", "version", Version)

	identity := plex.Identity{
		ClientID:   cfg.Client.Identifier,
		Product:    cfg.Client.Product,
		Version:    cfg.Client.Version,
		Platform:   cfg.Client.Platform,
		Device:     cfg.Client.Device,
		DeviceName: cfg.Client.DeviceName,
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	secure, err := storage.OpenSecure(store, cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open secure storage: %w", err)
	}

	appCache := buildCache(cfg, logger)
	defer appCache.Close()

	auth := plex.NewAuthService(identity, logger)

	c := core.New(core.Config{
		Auth:     auth,
		Store:    secure,
		Cache:    appCache,
		Identity: identity,
		Logger:   logger,
	})

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	restored, err := c.Initialize(initCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	if restored {
		logger.Info("session restored")
	}

	// First run (or a dropped token): sign in from the plain terminal
	// before the TUI takes the screen over.
	if !c.IsAuthenticated() {
		if tokenAuth {
			err = runTokenFlow(c)
		} else {
			err = runLinkFlow(c)
		}
		if err != nil {
			return err
		}
	}

	launcher := player.New(cfg.Player.Command, cfg.Player.Args, cfg.Player.StartFlag, logger)

	var progress playback.ProgressSink
	if cfg.Backend.URL != "" {
		progress = playback.NewProgressClient(cfg.Backend.URL, logger)
	}

	model := tui.New(tui.Config{
		Core:     c,
		Identity: identity,
		Launcher: launcher,
		Options: streaming.Options{
			Protocol:        cfg.Plex.Protocol,
			DirectPlay:      cfg.Plex.AllowDirectPlay,
			DirectStream:    cfg.Plex.AllowDirectStream,
			MaxVideoBitrate: cfg.Plex.MaxVideoBitrate,
			VideoResolution: cfg.Plex.VideoResolution,
		},
		Progress: progress,
		Logger:   logger,
	})

	p := tea.NewProgram(model, tea.WithAltScreen())

	logger.Info("starting TUI")

	final, err := p.Run()
	if err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	// Stop anything the quit path did not get to: the reporter sends its
	// teardown beacons and the transcode session is released.
	if m, ok := final.(tui.Model); ok {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		m.Shutdown(shutdownCtx)
		cancel()
	}

	logger.Info("shutting down")
	return nil
}

// buildCache picks the cache backend: Redis when configured and reachable,
// in-memory otherwise.
func buildCache(cfg *config.Config, logger *slog.Logger) cache.Cache {
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		}, logger)
		if err == nil {
			return rc
		}
		logger.Warn("redis unreachable, falling back to in-memory cache", "addr", cfg.Cache.RedisAddr, "error", err)
	}
	return cache.NewMemoryCache(time.Minute)
}

// runLinkFlow signs the account in by device link from a plain terminal.
func runLinkFlow(c *core.Core) error {
	fmt.Println()
	fmt.Println("Welcome to Flixor!")
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Minute)
	defer cancel()

	pin, err := c.CreatePin(ctx)
	if err != nil {
		return fmt.Errorf("failed to request link code: %w", err)
	}

	fmt.Printf("Visit https://plex.tv/link and enter: %s\n", pin.Code)
	fmt.Println()

	type result struct {
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		_, err := c.WaitForPin(ctx, pin.ID, plex.PinPollOptions{})
		resultCh <- result{err}
	}()

	// Spinner animation
	frame := 0
	fmt.Printf("\r%s Waiting for authorization...", styles.SpinnerFrames[frame])

	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case res := <-resultCh:
			fmt.Print(clearSpinnerLine)

			if res.err != nil {
				return fmt.Errorf("authorization failed: %w", res.err)
			}

			fmt.Println("✓ Signed in!")
			fmt.Println()
			return nil

		case <-ticker.C:
			frame++
			fmt.Printf("\r%s Waiting for authorization...", styles.SpinnerFrames[frame%len(styles.SpinnerFrames)])
		}
	}
}

// runTokenFlow reads an account token without echo and validates it
// against plex.tv.
func runTokenFlow(c *core.Core) error {
	fmt.Print("Plex account token: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	token := strings.TrimSpace(string(raw))
	if token == "" {
		return fmt.Errorf("no token entered")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.SetToken(ctx, token); err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}

	fmt.Println("✓ Signed in!")
	return nil
}
