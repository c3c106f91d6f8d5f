package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/anoixa/image-gallery/internal/app"
	"github.com/spf13/cobra"
)

// passwordEnv 未指定 --password 时从该环境变量读取
const passwordEnv = "GALLERY_PASSWORD"

var sessionLoginCmd = &cobra.Command{
	Use:   "login <userid>",
	Short: "Log in and persist the session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		password := passwordFlag(cmd)
		withContainer(func(ctx context.Context, c *app.Container) {
			if err := c.Session().Login(ctx, args[0], password); err != nil {
				log.Fatalf("Login failed: %v", err)
			}
			current, _ := c.Session().Current()
			log.Printf("Logged in as %s (%s)", current.ActorID, current.DisplayName)
		})
	},
}

var sessionLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the persisted session",
	Run: func(cmd *cobra.Command, args []string) {
		withContainer(func(ctx context.Context, c *app.Container) {
			c.Session().Logout(ctx)
			log.Println("Logged out")
		})
	},
}

var sessionRegisterCmd = &cobra.Command{
	Use:   "register <userid> <name>",
	Short: "Register a new account (does not log in)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		password := passwordFlag(cmd)
		withContainer(func(ctx context.Context, c *app.Container) {
			if err := c.Session().Register(ctx, args[0], args[1], password); err != nil {
				log.Fatalf("Register failed: %v", err)
			}
			log.Printf("Account %s registered", args[0])
		})
	},
}

var sessionWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	Run: func(cmd *cobra.Command, args []string) {
		withContainer(func(ctx context.Context, c *app.Container) {
			current, ok := c.Session().Current()
			if !ok {
				fmt.Println("anonymous")
				return
			}
			printJSON(current)
		})
	},
}

var userCmd = &cobra.Command{
	Use:   "user <userid>",
	Short: "Show a user's public profile",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withContainer(func(ctx context.Context, c *app.Container) {
			profile, err := c.Session().Profile(ctx, args[0])
			if err != nil {
				log.Fatalf("Failed to load profile: %v", err)
			}
			printJSON(profile)
		})
	},
}

func init() {
	rootCmd.AddCommand(sessionLoginCmd, sessionLogoutCmd, sessionRegisterCmd, sessionWhoamiCmd, userCmd)

	sessionLoginCmd.Flags().String("password", "", "password (default: $"+passwordEnv+")")
	sessionRegisterCmd.Flags().String("password", "", "password (default: $"+passwordEnv+")")
}

func passwordFlag(cmd *cobra.Command) string {
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		log.Fatalf("Password required: use --password or set %s", passwordEnv)
	}
	return password
}
