package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/watzon/authhook/internal/database"
	"github.com/watzon/authhook/internal/users"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect the mirrored users table",
}

var usersShowCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Print a mirrored user as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserStore(func(store *users.Store) error {
			return showUser(cmd.Context(), cmd.OutOrStdout(), store, args[0])
		})
	},
}

var usersCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of mirrored users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserStore(func(store *users.Store) error {
			return countUsers(cmd.Context(), cmd.OutOrStdout(), store)
		})
	},
}

func init() {
	usersCmd.AddCommand(usersShowCmd)
	usersCmd.AddCommand(usersCountCmd)

	rootCmd.AddCommand(usersCmd)
}

func withUserStore(fn func(*users.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	return fn(users.NewStore(db))
}

type userReader interface {
	Get(ctx context.Context, uid string) (*users.User, error)
	Count(ctx context.Context) (int, error)
}

func showUser(ctx context.Context, w io.Writer, store userReader, uid string) error {
	u, err := store.Get(ctx, uid)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(u)
}

func countUsers(ctx context.Context, w io.Writer, store userReader) error {
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, n)
	return err
}
