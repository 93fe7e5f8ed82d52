package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"roostersync/internal/events"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Manage a user's custom events",
		Long: `Lists, adds, updates, removes and purges the manually added events
that are merged into the generated calendars. Every mutation rewrites
the calendar files before returning.`,
	}

	cmd.AddCommand(newEventsListCmd())
	cmd.AddCommand(newEventsAddCmd())
	cmd.AddCommand(newEventsUpdateCmd())
	cmd.AddCommand(newEventsRemoveCmd())
	cmd.AddCommand(newEventsPurgeCmd())
	return cmd
}

func newEventsListCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's custom events",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			evs, err := a.events.List(username)
			if err != nil {
				return err
			}
			if len(evs) == 0 {
				fmt.Println("No custom events found.")
				return nil
			}
			for i, ev := range evs {
				line := fmt.Sprintf("%d: %s - %s", i,
					ev.Start.Format("2006-01-02 15:04"), ev.End.Format("2006-01-02 15:04"))
				if ev.Description != "" {
					line += " (" + ev.Description + ")"
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "User whose events to list")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func newEventsAddCmd() *cobra.Command {
	var username, startStr, endStr, description string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a custom event",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			start, err := parseEventTime(startStr)
			if err != nil {
				return err
			}
			end, err := parseEventTime(endStr)
			if err != nil {
				return err
			}
			if !end.After(start) {
				return errors.New("end must be after start")
			}

			if err := a.engine.AddCustomEvent(username, start, end, description); err != nil {
				return err
			}
			fmt.Println("Added.")
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "User to add the event for")
	cmd.Flags().StringVar(&startStr, "start", "", "Event start")
	cmd.Flags().StringVar(&endStr, "end", "", "Event end")
	cmd.Flags().StringVar(&description, "description", "", "Optional description")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newEventsUpdateCmd() *cobra.Command {
	var username, origStartStr, origEndStr, startStr, endStr string

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Move a custom event, or edit a fetched shift",
		Long: `Changes the span of the custom event matching --orig-start/--orig-end.
When no custom event matches but a fetched shift does, the shift is
copied into a custom event with the new span, so the original stays
suppressed in the generated calendars.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			origStart, err := parseEventTime(origStartStr)
			if err != nil {
				return err
			}
			origEnd, err := parseEventTime(origEndStr)
			if err != nil {
				return err
			}
			start, err := parseEventTime(startStr)
			if err != nil {
				return err
			}
			end, err := parseEventTime(endStr)
			if err != nil {
				return err
			}
			if !end.After(start) {
				return errors.New("end must be after start")
			}

			outcome, err := a.engine.UpdateCustomEvent(username, origStart, origEnd, start, end)
			if err != nil {
				return err
			}
			switch outcome {
			case events.UpdatedOverride:
				fmt.Println("Updated.")
			case events.MaterializedCached:
				fmt.Println("Updated (copied from the fetched schedule).")
			default:
				fmt.Println("No matching event found; nothing changed.")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "User whose event to update")
	cmd.Flags().StringVar(&origStartStr, "orig-start", "", "Current event start")
	cmd.Flags().StringVar(&origEndStr, "orig-end", "", "Current event end")
	cmd.Flags().StringVar(&startStr, "start", "", "New event start")
	cmd.Flags().StringVar(&endStr, "end", "", "New event end")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("orig-start")
	_ = cmd.MarkFlagRequired("orig-end")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newEventsRemoveCmd() *cobra.Command {
	var username, startStr, endStr string

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a custom event",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			start, err := parseEventTime(startStr)
			if err != nil {
				return err
			}
			end, err := parseEventTime(endStr)
			if err != nil {
				return err
			}

			if err := a.engine.RemoveCustomEvent(username, start, end); err != nil {
				return err
			}
			fmt.Println("Removed.")
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "User whose event to remove")
	cmd.Flags().StringVar(&startStr, "start", "", "Event start")
	cmd.Flags().StringVar(&endStr, "end", "", "Event end")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func newEventsPurgeCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop custom events older than a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}

			if err := a.events.Purge(username, time.Now()); err != nil {
				return err
			}
			if err := a.engine.Rebuild(username); err != nil {
				return err
			}
			fmt.Println("Purged.")
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "User whose events to purge")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}
