package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"roostersync/internal/userstore"
)

func newRegisterCmd() *cobra.Command {
	var (
		username     string
		password     string
		summaries    []string
		frequency    int
		descriptions bool
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a new user",
		Long: `Creates the persisted record for a user. The password is read from
stdin when not passed via --password, so it stays out of shell history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			if username == "" {
				return errors.New("--username is required")
			}
			if password == "" {
				fmt.Fprint(os.Stderr, "Password: ")
				reader := bufio.NewReader(os.Stdin)
				line, err := reader.ReadString('\n')
				if err != nil {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimSpace(line)
			}
			if password == "" {
				return errors.New("password is empty")
			}

			cfg := &userstore.UserConfig{
				Username:       username,
				Password:       password,
				Summaries:      summaries,
				Descriptions:   descriptions,
				RefreshSeconds: frequency,
			}
			if err := a.users.Register(cfg); err != nil {
				return err
			}

			fmt.Printf("Registered %s with %d calendar(s).\n", username, len(cfg.Summaries))
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "jouwloon.nl username")
	cmd.Flags().StringVar(&password, "password", "", "jouwloon.nl password (prompted when omitted)")
	cmd.Flags().StringArrayVar(&summaries, "summary", []string{"Werken"}, "Calendar title; repeat for multiple calendars")
	cmd.Flags().IntVar(&frequency, "frequency", 3600, "Refresh interval in seconds")
	cmd.Flags().BoolVar(&descriptions, "descriptions", false, "Fetch per-shift descriptions (one extra request per shift)")
	return cmd
}
