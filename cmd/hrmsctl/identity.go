package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GlobalTechSoftwareSolution/light-pkgs/internal/models"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage accounts the resolver can match",
}

var identityAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Create or update an account and its role-table row",
	Example: `  hrmsctl identity add --email abhishek@example.com --role Employee --name "Abhishek Kumar"`,
	Args:    cobra.NoArgs,
	RunE:    runIdentityAdd,
}

var identityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts in resolver priority order",
	Args:  cobra.NoArgs,
	RunE:  runIdentityList,
}

func init() {
	identityAddCmd.Flags().String("email", "", "Account email (required)")
	identityAddCmd.Flags().String("role", string(models.RoleEmployee), "One of HR, Employee, CEO, Manager, Admin")
	identityAddCmd.Flags().String("name", "", "Display name matched against gallery names (required)")
	_ = identityAddCmd.MarkFlagRequired("email")
	_ = identityAddCmd.MarkFlagRequired("name")

	identityCmd.AddCommand(identityAddCmd, identityListCmd)
	rootCmd.AddCommand(identityCmd)
}

func runIdentityAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	email, _ := cmd.Flags().GetString("email")
	roleStr, _ := cmd.Flags().GetString("role")
	name, _ := cmd.Flags().GetString("name")

	role, ok := models.ParseRole(roleStr)
	if !ok {
		return fmt.Errorf("unknown role %q", roleStr)
	}

	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	id := models.Identity{Email: strings.TrimSpace(email), Role: role, DisplayName: strings.TrimSpace(name)}
	if err := store.UpsertIdentity(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s) as %q\n", id.Email, id.Role, id.DisplayName)
	return nil
}

func runIdentityList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, role := range models.Roles {
		ids, err := store.ListRole(ctx, role)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintf(cmd.OutOrStdout(), "%-9s %-32s %s\n", role, id.Email, id.DisplayName)
		}
	}
	return nil
}
