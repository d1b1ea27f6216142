package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:     "search <text>",
	Short:   "Search customers and sales",
	Example: `  installments search "ali"`,
	Args:    cobra.MinimumNArgs(1),
	RunE:    runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSearch(cmd *cobra.Command, args []string) error {
	result := current.ledger.Search(cmd.Context(), strings.Join(args, " "))
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), result)
	}

	out := cmd.OutOrStdout()
	if result.Empty() {
		fmt.Fprintln(out, "No results.")
		return nil
	}

	if len(result.Customers) > 0 {
		fmt.Fprintf(out, "Customers (%d):\n", len(result.Customers))
		tw := newTable(out)
		for _, c := range result.Customers {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", c.ID, c.Name, c.Phone)
		}
		tw.Flush()
	}
	if len(result.Sales) > 0 {
		fmt.Fprintf(out, "Sales (%d):\n", len(result.Sales))
		tw := newTable(out)
		for _, s := range result.Sales {
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", s.ID, s.CustomerName, s.Product, current.money(s.Remaining()))
		}
		tw.Flush()
	}
	return nil
}
