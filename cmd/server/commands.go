package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/linechat-server/internal/app"
	"github.com/vovakirdan/linechat-server/internal/auth"
	"github.com/vovakirdan/linechat-server/internal/config"
	"github.com/vovakirdan/linechat-server/internal/log"
)

// Global flags
var (
	configPath string
	addr       string
	logLevel   string
	noConsole  bool
	operator   string
	tokenTTL   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "linechat-server",
	Short: "linechat - line-oriented TCP chat server",
	Long: `linechat is a TCP chat server speaking a newline-delimited text protocol,
with per-user moderation state and an operator console.

Running without a subcommand starts the server.`,
	Version:      app.Version,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat server",
	RunE:  runServe,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print an operator token for the remote console",
	RunE:  runToken,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", app.Copyright, app.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default $LINECHAT_CONFIG_DEFAULT_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug|info|warn|error)")

	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&addr, "addr", "", "chat listen address")
		cmd.Flags().BoolVar(&noConsole, "no-console", false, "do not read operator commands from stdin")
	}

	tokenCmd.Flags().StringVar(&operator, "operator", "", "operator name embedded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default 24h)")
	_ = tokenCmd.MarkFlagRequired("operator")

	rootCmd.SetVersionTemplate(fmt.Sprintf("linechat-server %s\n", app.Version))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (*config.Config, error) {
	bootstrap := log.New("info")
	cfg, path, err := config.Load(bootstrap, configPath)
	if err != nil {
		return nil, err
	}
	cfg.UpdateFrom(config.Config{Addr: addr, LogLevel: logLevel})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	bootstrap.Debug().Str("path", path).Msg("config loaded")
	return &cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.NewWithWriter(cfg.LogLevel, logWriter(!noConsole, os.Stdout, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	if !noConsole {
		application.AttachConsole(os.Stdin, cmd.OutOrStdout())
	}

	logger.Info().Str("addr", cfg.Addr).Str("http_addr", cfg.HTTPAddr).Msg("starting linechat server")
	if err := application.Run(ctx); err != nil {
		return fmt.Errorf("server exited with error: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

// logWriter keeps logs off stdout while the operator console prompts there.
func logWriter(withConsole bool, stdout, stderr io.Writer) io.Writer {
	if withConsole {
		return stderr
	}
	return stdout
}

func runToken(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	jwtCfg := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	if tokenTTL > 0 {
		jwtCfg.TTL = tokenTTL
	}
	token, err := auth.GenerateToken(jwtCfg, operator)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
