package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"installments/internal/auth"
	"installments/internal/backup"
	"installments/internal/config"
	"installments/internal/ledger"
	"installments/internal/logger"
	"installments/internal/mirror"
	"installments/internal/store"
)

// dateLayout is the format of date flags.
const dateLayout = "2006-01-02"

// app holds the services one command invocation works with.
type app struct {
	cfg        *config.Config
	kv         store.KV
	records    *store.Records
	ledger     *ledger.Service
	gate       *auth.Gate
	backups    *backup.Manager
	remote     mirror.Mirror
	dispatcher *mirror.Dispatcher
	log        zerolog.Logger
}

func openApp(ctx context.Context, c *config.Config) (*app, error) {
	log := logger.WithComponent("app")

	kv, err := store.OpenSQLite(c.DataPath)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     c,
		kv:      kv,
		records: store.NewRecords(kv),
		gate:    auth.NewGate(kv),
		log:     log,
	}

	opts := []ledger.Option{ledger.WithCurrencyLabel(c.CurrencyLabel)}

	// The mirror is best effort: when it cannot be reached the ledger runs without it.
	remote, err := mirror.New(ctx, c)
	if err != nil {
		log.Warn().Err(err).Str("backend", c.MirrorBackend).Msg("Remote mirror unavailable, continuing without it")
	} else if remote != nil {
		a.remote = remote
		a.dispatcher = mirror.NewDispatcher(remote,
			mirror.WithWorkers(c.MirrorWorkers),
			mirror.WithTimeout(c.MirrorTimeout),
		)
		opts = append(opts, ledger.WithShadow(a.dispatcher))
	}
	a.ledger = ledger.New(a.records, opts...)

	var backupOpts []backup.Option
	if c.Backup.Bucket != "" {
		uploader, err := backup.NewS3Uploader(ctx, c.Backup)
		if err != nil {
			log.Warn().Err(err).Str("bucket", c.Backup.Bucket).Msg("Backup storage unavailable")
		} else {
			backupOpts = append(backupOpts, backup.WithUploader(uploader))
		}
	}
	a.backups = backup.NewManager(a.records, backupOpts...)

	return a, nil
}

// autoBackup writes the daily snapshot when enabled. Failures never stop a command.
func (a *app) autoBackup(ctx context.Context) {
	info, written, err := a.backups.AutoBackup(ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("Automatic backup failed")
		return
	}
	if written {
		a.log.Debug().Str("key", info.Key).Msg("Automatic backup written")
	}
}

// Close waits for pending mirror updates, then closes the store.
func (a *app) Close() {
	if a.dispatcher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.MirrorTimeout)
		if err := a.dispatcher.Close(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Some mirror updates were not delivered")
		}
		cancel()
	}
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close remote mirror")
		}
	}
	if err := a.kv.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close local store")
	}
}

func (a *app) money(d decimal.Decimal) string {
	return a.ledger.Money(d)
}

func parseAmount(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: expected a number", field, s)
	}
	return d, nil
}

func parseDate(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %q: expected YYYY-MM-DD", field, s)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(dateLayout)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// openOutput returns stdout for "" or "-", otherwise a new file.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// confirm asks a yes/no question on stdin. Anything but y or yes is a no.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", question)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("no confirmation given, use --yes to skip the question")
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer != "y" && answer != "yes" {
		fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
		return false, nil
	}
	return true, nil
}
