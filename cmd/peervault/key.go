package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/robcohen/peervault/pkg/core"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Manage the vault's encryption key",
}

var keyCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Derive a new vault key from a password and encrypt the vault under it",
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		return withVaultOffline(cmd, func(ctx context.Context, v *core.Vault) error {
			password, err := readPassword("Enter a new vault password: ")
			if err != nil {
				return err
			}
			if err := v.CreateVaultKey(ctx, password); err != nil {
				return err
			}
			fmt.Println("vault key created")
			return nil
		})
	},
}

var keyUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock an encrypted vault with its password",
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		return withVaultOffline(cmd, func(ctx context.Context, v *core.Vault) error {
			password, err := readPassword("Vault password: ")
			if err != nil {
				return err
			}
			if err := v.Unlock(ctx, password); err != nil {
				return err
			}
			fmt.Println("vault unlocked")
			return nil
		})
	},
}

var keyExportCmd = &cobra.Command{
	Use:   "export-recovery",
	Short: "Print the vault's 24-word recovery phrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		return withVaultOffline(cmd, func(ctx context.Context, v *core.Vault) error {
			words, err := v.ExportRecoveryPhrase()
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(words, " "))
			return nil
		})
	},
}

var keyImportCmd = &cobra.Command{
	Use:   "import-recovery",
	Short: "Restore the vault key from a 24-word recovery phrase read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		initLogging()
		return withVaultOffline(cmd, func(ctx context.Context, v *core.Vault) error {
			fmt.Print("Enter your 24-word recovery phrase: ")
			scanner := bufio.NewScanner(os.Stdin)
			if !scanner.Scan() {
				return fmt.Errorf("no phrase read")
			}
			words := strings.Fields(scanner.Text())
			if err := v.ImportRecoveryPhrase(ctx, words); err != nil {
				return err
			}
			fmt.Println("vault key restored")
			return nil
		})
	},
}

// readPassword prompts on stdout and reads a line from stdin without echo
// when stdin is a terminal, falling back to a plain scan for pipes and
// test harnesses.
func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		return "", fmt.Errorf("no password read")
	}
	return scanner.Text(), nil
}

func init() {
	keyCmd.PersistentFlags().String("node-id", "", "Node ID (random if omitted)")

	keyCmd.AddCommand(keyCreateCmd)
	keyCmd.AddCommand(keyUnlockCmd)
	keyCmd.AddCommand(keyExportCmd)
	keyCmd.AddCommand(keyImportCmd)
}
