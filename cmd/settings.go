package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show or change preferences",
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current settings as JSON",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set key=value...",
	Short: "Change one or more settings",
	Long: `Change settings by their JSON names. Values true/false become booleans and
whole numbers become numbers; anything else is kept as text.`,
	Example: `  installments settings set lateDays=45
  installments settings set autoBackup=true backupRetention=14`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSettingsSet,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsShowCmd, settingsSetCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	return printJSON(cmd.OutOrStdout(), current.ledger.Settings(cmd.Context()))
}

// settingsPatch turns key=value arguments into a JSON object.
func settingsPatch(args []string) ([]byte, error) {
	patch := make(map[string]any, len(args))
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid setting %q, expected key=value", arg)
		}
		raw = strings.TrimSpace(raw)
		if b, err := strconv.ParseBool(raw); err == nil {
			patch[key] = b
		} else if n, err := strconv.Atoi(raw); err == nil {
			patch[key] = n
		} else {
			patch[key] = raw
		}
	}
	return json.Marshal(patch)
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	patch, err := settingsPatch(args)
	if err != nil {
		return err
	}
	settings, err := current.ledger.UpdateSettings(cmd.Context(), patch)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✅ Settings saved")
	return printJSON(cmd.OutOrStdout(), settings)
}
