package commands

import (
	"context"
	"fmt"
	"strings"

	"issuetracker/internal/models"
	"issuetracker/internal/observability"
	"issuetracker/internal/services"
	contextutils "issuetracker/internal/utils"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// UserCommands returns the user management commands
func UserCommands(userService services.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "User management commands",
		Long: `User management commands for the issue tracker.

Available commands:
  list           - List users
  create         - Create an account with a role and cohort
  reset-password - Reset password for a specific user`,
	}

	userCmd.AddCommand(listCmd(userService, logger))
	userCmd.AddCommand(createCmd(userService, logger))
	userCmd.AddCommand(resetPasswordCmd(userService, logger))

	return userCmd
}

func listCmd(userService services.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	var filter services.UserFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Long:  `List users with their role, cohort and last login. Filters may be combined.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			users, total, err := userService.ListUsers(ctx, filter, services.PageRequest{})
			if err != nil {
				logger.Error(ctx, "Failed to list users", err)
				return contextutils.WrapError(err, "failed to list users")
			}

			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintln(out, "No users found")
				return nil
			}

			fmt.Fprintf(out, "%-5s %-20s %-30s %-8s %-12s %-7s %s\n", "ID", "Username", "Email", "Role", "Cohort", "Active", "Last login")
			fmt.Fprintln(out, strings.Repeat("-", 100))
			for _, u := range users {
				email := "N/A"
				if u.Email.Valid && u.Email.String != "" {
					email = u.Email.String
				}
				cohort := u.Cohort
				if cohort == "" {
					cohort = "-"
				}
				active := "yes"
				if !u.IsActive {
					active = "no"
				}
				lastLogin := "never"
				if u.LastLogin.Valid {
					lastLogin = humanize.Time(u.LastLogin.Time)
				}
				fmt.Fprintf(out, "%-5d %-20s %-30s %-8s %-12s %-7s %s\n",
					u.ID, u.Username, email, u.Role, cohort, active, lastLogin)
			}
			fmt.Fprintf(out, "\n%s users\n", humanize.Comma(int64(total)))

			logger.Info(ctx, "Listed users", map[string]interface{}{"total": total})
			return nil
		},
	}

	cmd.Flags().StringVar(&filter.Role, "role", "", "Only users with this role")
	cmd.Flags().StringVar(&filter.Cohort, "cohort", "", "Only users in this cohort")
	cmd.Flags().StringVar(&filter.Search, "search", "", "Match username, email or name")
	return cmd
}

func createCmd(userService services.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	var in services.CreateUserInput
	var role string

	cmd := &cobra.Command{
		Use:   "create <username>",
		Short: "Create a user",
		Long:  `Create an account. The password is read from the terminal without echo.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			in.Username = args[0]
			in.Role = models.Role(role)
			if !in.Role.Valid() {
				return contextutils.ErrorWithContextf("unknown role %q", role)
			}

			password, err := promptPassword(cmd.OutOrStdout(), "password")
			if err != nil {
				return err
			}
			in.Password, in.PasswordConfirm = password, password

			user, err := userService.CreateUser(ctx, in)
			if err != nil {
				logger.Error(ctx, "Failed to create user", err, map[string]interface{}{"username": in.Username})
				return contextutils.WrapErrorf(err, "failed to create user '%s'", in.Username)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Created %s '%s' (ID: %d)\n", user.Role, user.Username, user.ID)
			logger.Info(ctx, "User created", map[string]interface{}{"user_id": user.ID, "role": string(user.Role)})
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", string(models.RoleStudent), "student, mentor or admin")
	cmd.Flags().StringVar(&in.Cohort, "cohort", "", "Cohort the user belongs to")
	cmd.Flags().StringVar(&in.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&in.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&in.LastName, "last-name", "", "Last name")
	return cmd
}

func resetPasswordCmd(userService services.UserServiceInterface, logger *observability.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-password [username]",
		Short: "Reset password for a user",
		Long:  `Reset the password for a specific user. If username is not provided, you will be prompted for it.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			out := cmd.OutOrStdout()

			var username string
			if len(args) > 0 {
				username = args[0]
			} else {
				var err error
				if username, err = promptLine(cmd.InOrStdin(), out, "Username"); err != nil {
					return err
				}
			}
			if username == "" {
				return contextutils.ErrorWithContextf("username is required")
			}

			user, err := userService.GetUserByUsername(ctx, username)
			if err != nil {
				logger.Error(ctx, "Failed to get user", err, map[string]interface{}{"username": username})
				return contextutils.WrapErrorf(err, "failed to get user '%s'", username)
			}

			password, err := promptPassword(out, "new password")
			if err != nil {
				return err
			}

			if err := userService.SetPassword(ctx, user.ID, password); err != nil {
				logger.Error(ctx, "Failed to update password", err, map[string]interface{}{"user_id": user.ID})
				return contextutils.WrapErrorf(err, "failed to update password for user '%s'", username)
			}

			fmt.Fprintf(out, "Password reset for user '%s' (ID: %d)\n", username, user.ID)
			logger.Info(ctx, "Password reset successful", map[string]interface{}{"username": username, "user_id": user.ID})
			return nil
		},
	}
}
