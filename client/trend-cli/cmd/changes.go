package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type changeEntry struct {
	Entity            string `json:"entity"`
	UpdatedSecondsAgo int64  `json:"updated_seconds_ago"`
	Summary           string `json:"summary"`
	Diff              string `json:"diff"`
}

var watchInterval time.Duration

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "List entities, most recently changed first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if watchInterval <= 0 {
			_, err := printChanges(cmd.Context(), cmd.OutOrStdout(), "")
			return err
		}
		return watchChanges(cmd.Context(), cmd.OutOrStdout(), watchInterval)
	},
}

func init() {
	changesCmd.Flags().DurationVar(&watchInterval, "watch", 0, "poll at this interval and print only when something changed")
	rootCmd.AddCommand(changesCmd)
}

// printChanges prints the table unless its fingerprint equals last. It returns the new fingerprint.
func printChanges(ctx context.Context, w io.Writer, last string) (string, error) {
	var changes []changeEntry
	if err := getJSON(ctx, &changes, "changes"); err != nil {
		return last, err
	}
	var fp strings.Builder
	for _, c := range changes {
		fmt.Fprintf(&fp, "%s\x00%s\x00%s\x00", c.Entity, c.Summary, c.Diff)
	}
	if fp.String() == last {
		return last, nil
	}

	if len(changes) == 0 {
		fmt.Fprintln(w, "No entities tracked yet.")
	}
	for _, c := range changes {
		fmt.Fprintf(w, "%-24s updated %ds ago\n", c.Entity, c.UpdatedSecondsAgo)
		if c.Summary != "" {
			fmt.Fprintf(w, "    %s\n", c.Summary)
		}
	}
	return fp.String(), nil
}

func watchChanges(ctx context.Context, w io.Writer, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	last := ""
	for {
		fp, err := printChanges(ctx, w, last)
		if err != nil {
			fmt.Fprintf(w, "error: %v\n", err)
		}
		last = fp
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
