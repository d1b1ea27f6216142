package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"installments/internal/auth"
)

var setupCmd = &cobra.Command{
	Use:         "setup",
	Short:       "Create the first user",
	Long:        `Create the single user allowed to use the ledger. Only possible while no user exists.`,
	Example:     `  installments setup --username owner`,
	Annotations: public(),
	RunE:        runSetup,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Start a session",
	Long: `Log in and start a session of 12 hours, or 30 days with --remember.
Usernames are not case sensitive.`,
	Example:     `  installments login --username owner --remember`,
	Annotations: public(),
	RunE:        runLogin,
}

var logoutCmd = &cobra.Command{
	Use:         "logout",
	Short:       "End the current session",
	Annotations: public(),
	RunE:        runLogout,
}

var passwdCmd = &cobra.Command{
	Use:   "passwd",
	Short: "Change the password of the logged-in user",
	RunE:  runPasswd,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(setupCmd, loginCmd, logoutCmd, passwdCmd, whoamiCmd)

	for _, c := range []*cobra.Command{setupCmd, loginCmd} {
		c.Flags().StringP("username", "u", "", "Username")
		c.Flags().StringP("password", "p", "", "Password (prompted when omitted)")
	}
	setupCmd.Flags().String("confirm", "", "Password confirmation (prompted when omitted)")
	loginCmd.Flags().Bool("remember", false, "Keep the session for 30 days")

	passwdCmd.Flags().String("old", "", "Current password (prompted when omitted)")
	passwdCmd.Flags().String("new", "", "New password (prompted when omitted)")
}

// flagOrPrompt returns the flag value, or reads a line from stdin when it is empty.
func flagOrPrompt(cmd *cobra.Command, reader *bufio.Reader, flag, label string) (string, error) {
	v, _ := cmd.Flags().GetString(flag)
	if v != "" {
		return v, nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ", label)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runSetup(cmd *cobra.Command, args []string) error {
	in := bufio.NewReader(cmd.InOrStdin())

	username, err := flagOrPrompt(cmd, in, "username", "Username")
	if err != nil {
		return err
	}
	password, err := flagOrPrompt(cmd, in, "password", "Password")
	if err != nil {
		return err
	}
	confirm, err := flagOrPrompt(cmd, in, "confirm", "Confirm password")
	if err != nil {
		return err
	}

	created, err := current.gate.CreateFirstUser(cmd.Context(), username, password, confirm)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ User %s created. Log in with: installments login\n", created)
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	in := bufio.NewReader(cmd.InOrStdin())
	remember, _ := cmd.Flags().GetBool("remember")

	username, err := flagOrPrompt(cmd, in, "username", "Username")
	if err != nil {
		return err
	}
	password, err := flagOrPrompt(cmd, in, "password", "Password")
	if err != nil {
		return err
	}

	session, err := current.gate.Login(cmd.Context(), username, password, remember)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ Logged in as %s until %s\n",
		session.Username, session.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	if err := current.gate.Logout(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
	return nil
}

func runPasswd(cmd *cobra.Command, args []string) error {
	session, ok := current.gate.CurrentSession(cmd.Context())
	if !ok {
		return fmt.Errorf("passwd: %w", auth.ErrNotLoggedIn)
	}

	in := bufio.NewReader(cmd.InOrStdin())
	oldPassword, err := flagOrPrompt(cmd, in, "old", "Current password")
	if err != nil {
		return err
	}
	newPassword, err := flagOrPrompt(cmd, in, "new", "New password")
	if err != nil {
		return err
	}

	if err := current.gate.ChangePassword(cmd.Context(), session.Username, oldPassword, newPassword); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✅ Password changed.")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	session, ok := current.gate.CurrentSession(cmd.Context())
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Not logged in (login is disabled).")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (session since %s, expires %s)\n",
		session.Username,
		session.CreatedAt.Local().Format("2006-01-02 15:04"),
		session.ExpiresAt.Local().Format("2006-01-02 15:04"))
	return nil
}
