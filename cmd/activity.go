package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"installments/pkg/models"
)

var activityCmd = &cobra.Command{
	Use:   "activity",
	Short: "Show the activity log",
	Example: `  installments activity --type payment --limit 20`,
	Args:  cobra.NoArgs,
	RunE:  runActivity,
}

func init() {
	rootCmd.AddCommand(activityCmd)
	activityCmd.Flags().String("type", "", "Only sale, payment or customer entries")
	activityCmd.Flags().Int("limit", 50, "Show at most this many entries (0 for all)")
	activityCmd.Flags().Bool("json", false, "Output as JSON")
}

func runActivity(cmd *cobra.Command, args []string) error {
	kind, _ := cmd.Flags().GetString("type")
	limit, _ := cmd.Flags().GetInt("limit")

	entries := current.ledger.Activity(cmd.Context(), models.ActivityType(strings.ToLower(kind)))
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No activity yet.")
		return nil
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "WHEN\tTYPE\tWHAT")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Date.Local().Format("2006-01-02 15:04"), e.Type, e.Text)
	}
	return tw.Flush()
}
