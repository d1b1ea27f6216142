package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:     "backup",
	Aliases: []string{"backups"},
	Short:   "Create, list and restore snapshots of the ledger",
	Long: `Snapshots hold customers, sales, activity and settings and are kept in the
local store. Automatic daily snapshots are written when the autoBackup setting is
on, keeping the newest backupRetention of them.

Snapshots can be pushed to S3-compatible storage (LEDGER_BACKUP_S3_BUCKET and
related settings).`,
}

var backupCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Take a manual snapshot",
	Args:  cobra.NoArgs,
	RunE:  runBackupCreate,
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBackupList,
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <key>",
	Short: "Replace the current data with a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupRestore,
}

var backupDeleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runBackupDelete,
}

var backupPushCmd = &cobra.Command{
	Use:   "push [key]",
	Short: "Upload a snapshot to S3-compatible storage",
	Long:  `Upload a snapshot. Without a key a new manual snapshot is taken and uploaded.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBackupPush,
}

func init() {
	rootCmd.AddCommand(backupCmd)
	backupCmd.AddCommand(backupCreateCmd, backupListCmd, backupRestoreCmd, backupDeleteCmd, backupPushCmd)

	backupListCmd.Flags().Bool("json", false, "Output as JSON")
	backupRestoreCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

func runBackupCreate(cmd *cobra.Command, args []string) error {
	info, err := current.backups.CreateManual(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Backup %s created (%d customers, %d sales)\n", info.Key, info.Customers, info.Sales)
	return nil
}

func runBackupList(cmd *cobra.Command, args []string) error {
	infos, err := current.backups.List(cmd.Context())
	if err != nil {
		return err
	}
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(cmd.OutOrStdout(), infos)
	}
	if len(infos) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No backups.")
		return nil
	}

	tw := newTable(cmd.OutOrStdout())
	fmt.Fprintln(tw, "KEY\tTYPE\tTAKEN\tCUSTOMERS\tSALES\tSIZE")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n",
			info.Key, info.Type, info.Timestamp.Local().Format("2006-01-02 15:04"),
			info.Customers, info.Sales, info.Size)
	}
	return tw.Flush()
}

func runBackupRestore(cmd *cobra.Command, args []string) error {
	if yes, _ := cmd.Flags().GetBool("yes"); !yes {
		ok, err := confirm(cmd, fmt.Sprintf("Replace the current data with backup %s?", args[0]))
		if err != nil || !ok {
			return err
		}
	}

	info, err := current.backups.Restore(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if _, err := current.ledger.ResyncAll(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✅ Restored %s from %s\n",
		info.Key, info.Timestamp.Local().Format("2006-01-02 15:04"))
	if current.remote != nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Run 'installments mirror push' to update the remote copy.")
	}
	return nil
}

func runBackupDelete(cmd *cobra.Command, args []string) error {
	if err := current.backups.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Backup %s deleted\n", args[0])
	return nil
}

func runBackupPush(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		info, err := current.backups.CreateManual(cmd.Context())
		if err != nil {
			return err
		}
		key = info.Key
	}

	objectKey, err := current.backups.Push(cmd.Context(), key, current.cfg.Backup.Prefix)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "☁️  Backup %s uploaded to s3://%s/%s\n", key, current.cfg.Backup.Bucket, objectKey)
	return nil
}
