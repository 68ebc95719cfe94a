package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gomapp/trialfield/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage field crew user profiles",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user profile and make it active",
	Long: `Create a user profile and make it the active user.

New trial records are stamped with the active user's id.

Example usage:
  trialfield user create --name "Alice Field" --username alice_f
  trialfield user create --name "Bob Crew" --username bob_c --email bob@example.com`,
	Run: func(cmd *cobra.Command, args []string) {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		username, _ := cmd.Flags().GetString("username")

		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		user, err := db.CreateAndActivateUser(name, email, username)
		if err != nil {
			fatal("failed to create user: %v", err)
		}

		fmt.Printf("Created user %s (%s), now active\n", user.Username, user.UserUUID)
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user profiles, most recent first",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		users, err := db.ListUsers()
		if err != nil {
			fatal("failed to list users: %v", err)
		}

		active, err := db.ActiveUserUUID()
		if err != nil && !errors.Is(err, store.ErrNoActiveUser) {
			fatal("failed to resolve active user: %v", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "USERNAME\tNAME\tEMAIL\tUUID\t")
		for _, u := range users {
			marker := ""
			if u.UserUUID == active {
				marker = " *"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t\n", u.Username, marker, u.Name, u.Email, u.UserUUID)
		}
		w.Flush()
	},
}

var userSwitchCmd = &cobra.Command{
	Use:   "switch <username|uuid>",
	Short: "Change the active user",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		uuid, err := resolveUser(db, args[0])
		if err != nil {
			fatal("%v", err)
		}

		if err := db.SetActiveUser(uuid); err != nil {
			fatal("failed to switch user: %v", err)
		}

		fmt.Printf("Active user is now %s\n", args[0])
	},
}

var userCurrentCmd = &cobra.Command{
	Use:   "current",
	Short: "Show the active user",
	Run: func(cmd *cobra.Command, args []string) {
		db, err := openStore()
		if err != nil {
			fatal("%v", err)
		}
		defer db.Close()

		user, err := db.ActiveUser()
		if err != nil {
			if errors.Is(err, store.ErrNoActiveUser) {
				fmt.Println("No active user. Create one with: trialfield user create")
				return
			}
			fatal("failed to resolve active user: %v", err)
		}

		fmt.Printf("%s (%s) %s\n", user.Username, user.Name, user.UserUUID)
	},
}

// resolveUser accepts a username or a user uuid and returns the uuid.
func resolveUser(db *store.DB, ref string) (string, error) {
	if _, err := db.GetUser(ref); err == nil {
		return ref, nil
	}

	users, err := db.ListUsers()
	if err != nil {
		return "", fmt.Errorf("failed to list users: %w", err)
	}
	for _, u := range users {
		if u.Username == ref {
			return u.UserUUID, nil
		}
	}
	return "", fmt.Errorf("no user matches %q", ref)
}

func init() {
	userCreateCmd.Flags().String("name", "", "Display name (required)")
	userCreateCmd.Flags().String("email", "", "Email address")
	userCreateCmd.Flags().String("username", "", "Username, 3-32 word characters (required)")
	_ = userCreateCmd.MarkFlagRequired("name")
	_ = userCreateCmd.MarkFlagRequired("username")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userSwitchCmd)
	userCmd.AddCommand(userCurrentCmd)
	rootCmd.AddCommand(userCmd)
}
