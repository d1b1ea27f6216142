package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"installments/internal/ledger"
)

var customerCmd = &cobra.Command{
	Use:     "customer",
	Aliases: []string{"customers"},
	Short:   "Manage customers",
}

var customerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a customer",
	Example: `  installments customer add --name "Ali Hassan" --phone 0770123456 --category vip`,
	Args:  cobra.NoArgs,
	RunE:  runCustomerAdd,
}

var customerEditCmd = &cobra.Command{
	Use:   "edit <customer-id>",
	Short: "Change a customer's details",
	Long:  `Change the given fields of a customer. Fields without a flag keep their value.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomerEdit,
}

var customerDeleteCmd = &cobra.Command{
	Use:   "delete <customer-id>",
	Short: "Delete a customer and all of their sales",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomerDelete,
}

var customerShowCmd = &cobra.Command{
	Use:   "show <customer-id>",
	Short: "Show a customer with their sales",
	Args:  cobra.ExactArgs(1),
	RunE:  runCustomerShow,
}

var customerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List customers",
	Example: `  installments customer list --query ali
  installments customer list --category problematic`,
	Args: cobra.NoArgs,
	RunE: runCustomerList,
}

func init() {
	rootCmd.AddCommand(customerCmd)
	customerCmd.AddCommand(customerAddCmd, customerEditCmd, customerDeleteCmd, customerShowCmd, customerListCmd)

	for _, c := range []*cobra.Command{customerAddCmd, customerEditCmd} {
		c.Flags().String("name", "", "Full name")
		c.Flags().String("phone", "", "Phone number")
		c.Flags().String("address", "", "Address")
		c.Flags().String("notes", "", "Free notes")
		c.Flags().String("category", "", "normal, vip or problematic")
	}
	customerAddCmd.MarkFlagRequired("name")

	customerDeleteCmd.Flags().Bool("yes", false, "Do not ask for confirmation")

	customerListCmd.Flags().StringP("query", "q", "", "Match name, phone, address or notes")
	customerListCmd.Flags().String("category", "all", "all, normal, vip or problematic")
	customerListCmd.Flags().Bool("json", false, "Output as JSON")

	customerShowCmd.Flags().Bool("json", false, "Output as JSON")
}

func customerInput(cmd *cobra.Command) ledger.CustomerInput {
	name, _ := cmd.Flags().GetString("name")
	phone, _ := cmd.Flags().GetString("phone")
	address, _ := cmd.Flags().GetString("address")
	notes, _ := cmd.Flags().GetString("notes")
	category, _ := cmd.Flags().GetString("category")
	return ledger.CustomerInput{Name: name, Phone: phone, Address: address, Notes: notes, Category: category}
}

func runCustomerAdd(cmd *cobra.Command, args []string) error {
	c, err := current.ledger.AddCustomer(cmd.Context(), customerInput(cmd))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Customer added: %s (%s)\n", c.Name, c.ID)
	return nil
}

func runCustomerEdit(cmd *cobra.Command, args []string) error {
	existing, err := current.ledger.GetCustomer(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	in := ledger.CustomerInput{
		Name:     existing.Name,
		Phone:    existing.Phone,
		Address:  existing.Address,
		Notes:    existing.Notes,
		Category: string(existing.Category),
	}
	changed := customerInput(cmd)
	flags := cmd.Flags()
	if flags.Changed("name") {
		in.Name = changed.Name
	}
	if flags.Changed("phone") {
		in.Phone = changed.Phone
	}
	if flags.Changed("address") {
		in.Address = changed.Address
	}
	if flags.Changed("notes") {
		in.Notes = changed.Notes
	}
	if flags.Changed("category") {
		in.Category = changed.Category
	}

	c, err := current.ledger.UpdateCustomer(cmd.Context(), args[0], in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Customer updated: %s\n", c.Name)
	return nil
}

func runCustomerDelete(cmd *cobra.Command, args []string) error {
	view, err := current.ledger.GetCustomer(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	yes, _ := cmd.Flags().GetBool("yes")
	if !yes {
		ok, err := confirm(cmd, fmt.Sprintf("Delete %s and their %d sale(s)?", view.Name, view.SaleCount))
		if err != nil || !ok {
			return err
		}
	}

	removed, err := current.ledger.DeleteCustomer(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Customer deleted: %s (%d sale(s) removed)\n", view.Name, removed)
	return nil
}

func runCustomerShow(cmd *cobra.Command, args []string) error {
	view, err := current.ledger.GetCustomer(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	sales := current.ledger.ListSales(cmd.Context(), ledger.SaleFilter{CustomerID: view.ID})

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), map[string]any{"customer": view, "sales": sales})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", view.Name, view.Category)
	fmt.Fprintf(out, "  ID:       %s\n", view.ID)
	fmt.Fprintf(out, "  Phone:    %s\n", view.Phone)
	fmt.Fprintf(out, "  Address:  %s\n", view.Address)
	if view.Notes != "" {
		fmt.Fprintf(out, "  Notes:    %s\n", view.Notes)
	}
	fmt.Fprintf(out, "  Sales:    %d\n", view.SaleCount)
	fmt.Fprintf(out, "  Total:    %s\n", current.money(view.Total))
	fmt.Fprintf(out, "  Paid:     %s\n", current.money(view.Paid))
	fmt.Fprintf(out, "  Remaining: %s\n", current.money(view.Remaining))

	if len(sales) > 0 {
		fmt.Fprintln(out)
		return printSales(out, sales)
	}
	return nil
}

func runCustomerList(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	category, _ := cmd.Flags().GetString("category")

	views := current.ledger.ListCustomers(cmd.Context(), ledger.CustomerFilter{Query: query, Category: category})

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), views)
	}
	if len(views) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No customers found.")
		return nil
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "ID\tNAME\tPHONE\tCATEGORY\tSALES\tREMAINING")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			v.ID, v.Name, v.Phone, v.Category, v.SaleCount, current.money(v.Remaining))
	}
	return tw.Flush()
}
