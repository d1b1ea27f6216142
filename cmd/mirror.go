package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"installments/internal/mirror"
	"installments/pkg/models"
)

var mirrorCmd = &cobra.Command{
	Use:   "mirror",
	Short: "Work with the remote copy of the ledger",
	Long: `The remote mirror (LEDGER_MIRROR_BACKEND=redis or sheets) receives a copy of
every changed customer and sale. The local store always wins; mirror failures
are logged and never stop a command.`,
}

var mirrorPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Copy every local customer and sale to the mirror",
	Args:  cobra.NoArgs,
	RunE:  runMirrorPush,
}

var mirrorStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare the local data with the mirror",
	Args:  cobra.NoArgs,
	RunE:  runMirrorStatus,
}

var mirrorWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print remote changes as they happen",
	Long:  `Print changes made to the mirror by other copies of the ledger until interrupted.`,
	Args:  cobra.NoArgs,
	RunE:  runMirrorWatch,
}

func init() {
	rootCmd.AddCommand(mirrorCmd)
	mirrorCmd.AddCommand(mirrorPushCmd, mirrorStatusCmd, mirrorWatchCmd)
}

var errNoMirror = errors.New("no remote mirror configured (set LEDGER_MIRROR_BACKEND to redis or sheets)")

func runMirrorPush(cmd *cobra.Command, args []string) error {
	if current.remote == nil {
		return errNoMirror
	}
	ctx := cmd.Context()
	customers := current.records.Customers(ctx).Value
	sales := current.records.Sales(ctx).Value

	pushed, err := mirror.PushAll(ctx, current.remote, customers, sales)
	fmt.Fprintf(cmd.OutOrStdout(), "☁️  %d of %d record(s) pushed\n", pushed, len(customers)+len(sales))
	return err
}

func runMirrorStatus(cmd *cobra.Command, args []string) error {
	if current.remote == nil {
		return errNoMirror
	}
	ctx := cmd.Context()
	local := map[string]int{
		models.CollectionCustomers: len(current.records.Customers(ctx).Value),
		models.CollectionSales:     len(current.records.Sales(ctx).Value),
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "COLLECTION\tLOCAL\tREMOTE")
	for _, collection := range models.Collections {
		remote, err := current.remote.LoadCollection(ctx, collection)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\n", collection, local[collection], len(remote))
	}
	return tw.Flush()
}

func runMirrorWatch(cmd *cobra.Command, args []string) error {
	if current.remote == nil {
		return errNoMirror
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Watching for remote changes, press Ctrl+C to stop.")

	g, ctx := errgroup.WithContext(cmd.Context())
	for _, collection := range models.Collections {
		g.Go(func() error {
			return current.remote.Subscribe(ctx, collection, func(c mirror.Change) {
				action := "updated"
				if c.Deleted {
					action = "deleted"
				}
				fmt.Fprintf(out, "%s %s %s\n", c.Collection, c.ID, action)
			})
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
