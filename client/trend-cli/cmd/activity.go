package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var activityCmd = &cobra.Command{
	Use:   "activity [user-id] [description]",
	Short: "Record a user interaction (query, like, dislike)",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload := map[string]string{
			"user_id":     args[0],
			"description": strings.Join(args[1:], " "),
		}
		var ev struct {
			ID string `json:"id"`
		}
		if err := client().DoJSON(cmd.Context(), "POST", endpoint("activity"), nil, payload, &ev); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Activity recorded: %s\n", ev.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(activityCmd)
}
