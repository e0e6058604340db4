package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/watzon/authhook/internal/webhooks"
)

var signSecret string

var signCmd = &cobra.Command{
	Use:   "sign [file|-]",
	Short: "Print the signature header value for a payload",
	Long: `Print the sha256=<hex> signature for the exact bytes of a payload.

The payload is read from the named file, or from stdin when the argument is
omitted or "-". The secret defaults to webhook.secret from the config.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVarP(&signSecret, "secret", "s", "", "Webhook secret (default: webhook.secret from config)")

	rootCmd.AddCommand(signCmd)
}

func runSign(cmd *cobra.Command, args []string) error {
	secret := signSecret
	if secret == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		secret = cfg.Webhook.Secret
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening payload: %w", err)
		}
		defer f.Close()
		in = f
	}

	sig, err := signPayload(in, secret)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), sig)
	return err
}

var errNoSecret = errors.New("no webhook secret: pass --secret or set webhook.secret")

func signPayload(r io.Reader, secret string) (string, error) {
	if secret == "" {
		return "", errNoSecret
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading payload: %w", err)
	}

	return webhooks.Sign(body, secret), nil
}
