package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type entityState struct {
	Ref struct {
		Kind string `json:"kind"`
		ID   string `json:"id"`
	} `json:"ref"`
	Summary struct {
		Text            string    `json:"text"`
		ContributingIDs []string  `json:"contributing_ids"`
		UpdatedAt       time.Time `json:"updated_at"`
	} `json:"summary"`
	Activity []struct {
		Timestamp   float64 `json:"timestamp"`
		ActorID     string  `json:"actor_id"`
		Description string  `json:"description"`
	} `json:"activity"`
	Profile         map[string]string `json:"profile"`
	Version         int64             `json:"version"`
	ActivitySummary *summaryText      `json:"activity_summary"`
}

type summaryText struct {
	Text string `json:"text"`
}

var summaryCmd = &cobra.Command{
	Use:   "summary [kind] [id]",
	Short: "Show an entity's current summary and recent activity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var st entityState
		if err := getJSON(cmd.Context(), &st, "entities", args[0], args[1]); err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%s/%s (version %d, %d sources)\n", st.Ref.Kind, st.Ref.ID, st.Version, len(st.Summary.ContributingIDs))
		if len(st.Profile) > 0 {
			pairs := make([]string, 0, len(st.Profile))
			for _, k := range []string{"gender", "occupation", "age"} {
				if v, ok := st.Profile[k]; ok {
					pairs = append(pairs, k+"="+v)
				}
			}
			fmt.Fprintf(w, "profile: %s\n", strings.Join(pairs, " "))
		}
		if st.Summary.Text == "" {
			fmt.Fprintln(w, "No summary yet.")
		} else {
			fmt.Fprintln(w, st.Summary.Text)
		}
		if st.ActivitySummary != nil && st.ActivitySummary.Text != "" {
			fmt.Fprintf(w, "activity: %s\n", st.ActivitySummary.Text)
		}
		for i, a := range st.Activity {
			if i == 5 {
				fmt.Fprintf(w, "... %d more\n", len(st.Activity)-i)
				break
			}
			ts := time.Unix(0, int64(a.Timestamp*float64(time.Second))).UTC().Format(time.RFC3339)
			fmt.Fprintf(w, "  %s  %s: %s\n", ts, a.ActorID, a.Description)
		}
		return nil
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff [kind] [id]",
	Short: "Show the last change to an entity's summary",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			DiffText string `json:"diff_text"`
		}
		if err := getJSON(cmd.Context(), &out, "changes", args[0], args[1]); err != nil {
			return err
		}
		if out.DiffText == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No text change in the last update.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.DiffText)
		return nil
	},
}

var initParams []string

var initCmd = &cobra.Command{
	Use:   "init [kind] [id]",
	Short: "Create an entity, e.g. init user alice --param gender=menswear",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := make(map[string]string, len(initParams))
		for _, p := range initParams {
			k, v, ok := strings.Cut(p, "=")
			if !ok {
				return fmt.Errorf("param %q is not key=value", p)
			}
			params[k] = v
		}
		var st json.RawMessage
		if err := client().DoJSON(cmd.Context(), "POST", endpoint("entities", args[0], args[1]), nil, params, &st); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s/%s ready\n", args[0], args[1])
		return nil
	},
}

func init() {
	initCmd.Flags().StringArrayVar(&initParams, "param", nil, "init parameter as key=value (repeatable)")
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(initCmd)
}
