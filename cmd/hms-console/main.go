package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/hms/hms-console/internal/config"
	"github.com/hms/hms-console/internal/hms"
	"github.com/hms/hms-console/internal/platform/apiclient"
	"github.com/hms/hms-console/internal/platform/kvstore"
	"github.com/hms/hms-console/internal/sandbox"
	"github.com/hms/hms-console/internal/session"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "hms-console",
		Short:        "Hospital management console client",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(getCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(sandboxCmd())
	return rootCmd
}

// newLogger writes JSON to out, or a console format when ENV=development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		logger = logger.Level(level)
	}
	return logger
}

// app is the wiring shared by the client commands.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	session *session.Store
	client  *apiclient.Client
	api     *hms.API
	close   func()
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())

	ctx := cmd.Context()
	storage, closeStorage, err := kvstore.Open(ctx, cfg.KVOptions())
	if err != nil {
		return nil, fmt.Errorf("open session storage: %w", err)
	}

	store := session.NewStore(storage, logger)
	if err := store.Restore(ctx); err != nil {
		logger.Warn().Err(err).Msg("could not restore session")
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.APIURL,
		Tokens:  store,
		Logger:  logger,
	})
	if err != nil {
		store.Close()
		closeStorage()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		session: store,
		client:  client,
		api:     hms.New(client, store, logger),
		close: func() {
			store.Close()
			closeStorage()
		},
	}, nil
}

func sandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local backend with synthetic data",
		RunE: func(cmd *cobra.Command, args []string) error {
			port, _ := cmd.Flags().GetString("port")
			seed, _ := cmd.Flags().GetInt64("seed")
			return runSandbox(cmd, port, seed)
		},
	}
	cmd.Flags().String("port", "", "Listen port (defaults to SANDBOX_PORT)")
	cmd.Flags().Int64("seed", sandbox.DefaultSeedConfig().Seed, "Seed for the generated data")
	return cmd
}

func runSandbox(cmd *cobra.Command, port string, seed int64) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, cmd.ErrOrStderr())
	if port != "" {
		cfg.SandboxPort = port
	}

	key, random, err := resolveSandboxSigningKey(cfg.SandboxSigningKey)
	if err != nil {
		return err
	}
	if random {
		logger.Warn().Msg("SANDBOX_SIGNING_KEY not set; tokens will not survive a restart")
	}

	seedCfg := sandbox.DefaultSeedConfig()
	seedCfg.Seed = seed
	srv, err := sandbox.New(sandbox.Config{SigningKey: key, Seed: seedCfg}, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Demo accounts (password %q):\n", sandbox.DefaultPassword)
	for _, u := range sandbox.DemoUsers {
		fmt.Fprintf(out, "  %-28s %s\n", u.Email, u.Role)
	}

	e := srv.Handler()
	addr := cfg.SandboxAddr()

	// Graceful shutdown
	go func() {
		logger.Info().Str("addr", addr).Msg("starting sandbox")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("sandbox error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down sandbox")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("sandbox shutdown failed: %w", err)
	}
	logger.Info().Msg("sandbox stopped")
	return nil
}

// resolveSandboxSigningKey decodes a hex key, or generates a random one when
// none is configured. The bool reports whether the key is random.
func resolveSandboxSigningKey(envValue string) ([]byte, bool, error) {
	if envValue != "" {
		decoded, err := hex.DecodeString(envValue)
		if err != nil {
			return nil, false, fmt.Errorf("invalid SANDBOX_SIGNING_KEY hex value: %w", err)
		}
		return decoded, false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate random sandbox signing key: %w", err)
	}
	return key, true, nil
}
