/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// userCmd represents the user command.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var (
	createUsername string
	createEmail    string
	createPassword string
	createRole     string
	createAdmin    bool
)

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Provision a new user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		user, err := a.users.CreateUser(cmd.Context(), createUsername, createEmail, createPassword, createRole, createAdmin)
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Printf("created user %s (%s) role=%s admin=%v\n", user.Username, user.ID, user.Role, user.IsAdmin)
		return nil
	},
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate <user-id>",
	Short: "Deactivate a user account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.users.Deactivate(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		fmt.Printf("deactivated user %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userDeactivateCmd)

	userCreateCmd.Flags().StringVar(&createUsername, "username", "", "unique login name")
	userCreateCmd.Flags().StringVar(&createEmail, "email", "", "email address")
	userCreateCmd.Flags().StringVar(&createPassword, "password", "", "initial password")
	userCreateCmd.Flags().StringVar(&createRole, "role", "", "role tag (default \"user\")")
	userCreateCmd.Flags().BoolVar(&createAdmin, "admin", false, "grant administrative access")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")
}
