package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"installments/internal/auth"
	"installments/internal/config"
	"installments/internal/logger"
)

var version = "1.0.0"

// Command annotations.
const (
	// annotationPublic marks commands that run without a session.
	annotationPublic = "public"
	// annotationNoStore marks commands that never open the local store.
	annotationNoStore = "nostore"
)

var (
	cfg     *config.Config
	current *app
)

var rootCmd = &cobra.Command{
	Use:   "installments",
	Short: "Installment sales ledger",
	Long: `Installments keeps customers, sales made on credit and their payment
schedules in a local store, and reports what has been collected, what is
outstanding and which customers are late.

Data lives in a single sqlite file (LEDGER_DATA_PATH). It can optionally be
mirrored to Redis or Google Sheets and backed up to S3-compatible storage.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: prepare,
}

// Execute runs the command tree with the loaded configuration.
func Execute(c *config.Config) {
	log := logger.WithComponent("cmd")
	cfg = c

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if current != nil {
		current.Close()
	}
	if err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, auth.ErrNoUsers) {
			fmt.Fprintln(os.Stderr, "Create the first user with: installments setup")
		} else if errors.Is(err, auth.ErrNotLoggedIn) {
			fmt.Fprintln(os.Stderr, "Log in with: installments login")
		}
		os.Exit(1)
	}
}

// prepare opens the store and enforces the login gate before every command.
func prepare(cmd *cobra.Command, args []string) error {
	if skipsStore(cmd) {
		return nil
	}
	if cfg == nil {
		return errors.New("configuration could not be loaded, see the warning above")
	}

	a, err := openApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	current = a

	if cmd.Annotations[annotationPublic] == "true" {
		return nil
	}
	if cfg.AuthEnabled {
		if _, err := a.gate.EnsureSession(cmd.Context()); err != nil {
			return err
		}
	}

	a.autoBackup(cmd.Context())
	return nil
}

func public() map[string]string {
	return map[string]string{annotationPublic: "true"}
}

// skipsStore reports whether cmd runs without the store: annotated commands, help
// and shell completion.
func skipsStore(cmd *cobra.Command) bool {
	if cmd.Annotations[annotationNoStore] == "true" {
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return true
		}
	}
	return false
}
