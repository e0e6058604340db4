package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/authhook/internal/config"
)

var (
	cfgFile string
	verbose bool
)

// version is overridden at build time with -ldflags "-X".
var version = "0.1.0-dev"

var rootCmd = &cobra.Command{
	Use:   "authhook",
	Short: "Signed identity provider webhook receiver",
	Long: `authhook receives user lifecycle webhooks (user-created, user-updated,
user-deleted), verifies their HMAC-SHA256 signatures, rate limits each
caller and mirrors the users into a local SQLite table.

Start the receiver:
  authhook serve

Sign a payload for manual testing:
  authhook sign --secret "$AUTHHOOK_WEBHOOK_SECRET" payload.json

Check a running receiver end to end:
  authhook probe --url http://localhost:3000`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./authhook.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	rootCmd.Version = version
	rootCmd.SetVersionTemplate("authhook version {{.Version}}\n")
}

// setupLogging installs console logging for commands that run before the
// configured logger exists.
func setupLogging() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// loadConfig reads the config file named by --config, or searches the
// default locations when it is empty.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{ConfigFile: cfgFile})
	if err != nil {
		return nil, err
	}

	if verbose {
		if used, perr := config.ConfigFilePath(cfgFile); perr == nil {
			log.Debug().Str("file", used).Msg("Using config file")
		}
	}

	return cfg, nil
}
