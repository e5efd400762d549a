package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/brianly1003/notepadtt/internal/app"
	"github.com/brianly1003/notepadtt/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	dataDir     string
	host        string
	port        int
	staticDir   string
	externalURL string
	showQR      bool
	noWatch     bool
)

// serveCmd runs the sync server.
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"start"},
	Short:   "Start the notepadtt server",
	Long: `Start the notepadtt server for a data directory.

Each regular file in the data directory is a tab. Tab order, the active tab
and protection flags are kept in .notepadtt_metadata.txt next to them.

Example:
  notepadtt serve                          # ./data on 127.0.0.1:5000
  notepadtt serve --data-dir ~/notes
  notepadtt serve --host 0.0.0.0 --qr      # reachable from the LAN, print a QR code
  notepadtt serve --static-dir ./web       # also serve the notepad UI

Port forwarding:
  notepadtt serve --external-url https://your-tunnel.example.com`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding the tab files (default: ./data)")
	serveCmd.Flags().StringVar(&host, "host", "", "bind address (default: 127.0.0.1)")
	serveCmd.Flags().IntVar(&port, "port", 0, "HTTP and WebSocket port (default: 5000)")
	serveCmd.Flags().StringVar(&staticDir, "static-dir", "", "directory with the notepad web UI to serve at /")
	serveCmd.Flags().StringVar(&externalURL, "external-url", "", "public base URL advertised in the QR code")
	serveCmd.Flags().BoolVar(&showQR, "qr", false, "print a QR code of the notepad URL")
	serveCmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not watch the data directory for external edits")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyServeFlags(cmd, cfg); err != nil {
		return err
	}

	// Re-validate after overrides
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, closer := app.SetupLogging(cfg.Logging, verbose, os.Stderr)
	defer closer.Close()

	log.Info().
		Str("version", version).
		Str("data_dir", cfg.Storage.DataDir).
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("starting notepadtt")

	application, err := app.New(cfg, version, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}

	log.Info().Msg("notepadtt stopped")
	return nil
}

// applyServeFlags overrides cfg with the flags the user set.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("data-dir") {
		abs, err := config.ResolvePath(dataDir)
		if err != nil {
			return fmt.Errorf("invalid --data-dir: %w", err)
		}
		cfg.Storage.DataDir = abs
	}
	if flags.Changed("host") {
		cfg.Server.Host = host
	}
	if flags.Changed("port") {
		cfg.Server.Port = port
	}
	if flags.Changed("static-dir") {
		abs, err := config.ResolvePath(staticDir)
		if err != nil {
			return fmt.Errorf("invalid --static-dir: %w", err)
		}
		cfg.Server.StaticDir = abs
	}
	if flags.Changed("external-url") {
		cfg.Server.ExternalURL = strings.TrimRight(externalURL, "/")
	}
	if flags.Changed("qr") {
		cfg.Server.ShowQR = showQR
	}
	if noWatch {
		cfg.Watcher.Enabled = false
	}
	return nil
}
