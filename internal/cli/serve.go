package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/authhook/internal/config"
	"github.com/watzon/authhook/internal/database"
	"github.com/watzon/authhook/internal/logging"
	"github.com/watzon/authhook/internal/metrics"
	"github.com/watzon/authhook/internal/server"
	"github.com/watzon/authhook/internal/users"
	"github.com/watzon/authhook/internal/webhooks"
)

var (
	serveHost    string
	servePort    int
	serveNoWatch bool
)

const dbStatsInterval = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook receiver",
	Long: `Run the webhook receiver.

The receiver listens on /webhooks/firebase/{user-created,user-updated,user-deleted}
and mirrors verified users into the configured SQLite database. The webhook
secret must be set through webhook.secret or AUTHHOOK_WEBHOOK_SECRET.

While running, edits to the config file rotate the webhook secret without a
restart. Use --no-watch to disable this.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (overrides server.host)")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Disable config file watching")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := config.ValidateSecret(cfg.Webhook.Secret); err != nil {
		return err
	}

	closer, err := logging.Setup(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closer.Close()

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	srv, err := server.New(cfg, users.NewStore(db),
		server.WithPinger(db),
		server.WithVersion(version),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !serveNoWatch {
		watchSecret(srv.Verifier(), cfg.Webhook.Secret)
	}

	go reportDBStats(ctx, db)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}

	return <-errCh
}

// watchSecret rotates the verifier's secret whenever the config file
// changes. Reloads with a missing or short secret keep the current one.
func watchSecret(verifier *webhooks.Verifier, current string) {
	secret := current

	used, err := config.Watch(config.LoadOptions{ConfigFile: cfgFile},
		func(cfg *config.Config, e fsnotify.Event) {
			next := cfg.Webhook.Secret
			if next == secret {
				return
			}
			if err := config.ValidateSecret(next); err != nil {
				log.Warn().Err(err).Str("file", e.Name).Msg("Ignoring reloaded webhook secret")
				metrics.RecordSecretReload(false)
				return
			}
			verifier.SetSecret(next)
			secret = next
			metrics.RecordSecretReload(true)
			log.Info().Str("file", e.Name).Msg("Webhook secret rotated")
		},
		func(err error) {
			log.Warn().Err(err).Msg("Config reload failed, keeping previous secret")
			metrics.RecordSecretReload(false)
		},
	)
	if errors.Is(err, config.ErrConfigNotFound) {
		log.Debug().Msg("No config file to watch")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Failed to watch config file")
		return
	}

	log.Info().Str("file", used).Msg("Watching config for secret rotation")
}

func reportDBStats(ctx context.Context, db *database.DB) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()

	for {
		db.ReportStats()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
