package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var recommendCmd = &cobra.Command{
	Use:   "recommend [user-id] [event]",
	Short: "Ask the stylist what a user should wear to an event",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var rec struct {
			Shoes     string   `json:"shoes"`
			UpperBody string   `json:"upper_body_garments"`
			LowerBody string   `json:"lower_body_garments"`
			Outerwear string   `json:"outerwear"`
			Bags      string   `json:"bags"`
			Items     []string `json:"items"`
		}
		payload := map[string]string{"event": strings.Join(args[1:], " ")}
		if err := client().DoJSON(cmd.Context(), "POST", endpoint("users", args[0], "recommend"), nil, payload, &rec); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, row := range [][2]string{
			{"shoes", rec.Shoes},
			{"upper body", rec.UpperBody},
			{"lower body", rec.LowerBody},
			{"outerwear", rec.Outerwear},
			{"bags", rec.Bags},
		} {
			if row[1] != "" {
				fmt.Fprintf(w, "%-11s %s\n", row[0]+":", row[1])
			}
		}
		if len(rec.Items) > 0 {
			fmt.Fprintf(w, "remembered: %s\n", strings.Join(rec.Items, ", "))
		}
		return nil
	},
}

var noteEvent string

var noteCmd = &cobra.Command{
	Use:   "note [user-id] [item]",
	Short: "Explain why a recommended item suits a user",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if strings.TrimSpace(noteEvent) == "" {
			return fmt.Errorf("--event is required")
		}
		payload := map[string]string{
			"event":          noteEvent,
			"recommendation": strings.Join(args[1:], " "),
		}
		var out struct {
			Note string `json:"note"`
		}
		if err := client().DoJSON(cmd.Context(), "POST", endpoint("users", args[0], "note"), nil, payload, &out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Note)
		return nil
	},
}

func init() {
	noteCmd.Flags().StringVar(&noteEvent, "event", "", "the event the item was recommended for")
	rootCmd.AddCommand(recommendCmd, noteCmd)
}
