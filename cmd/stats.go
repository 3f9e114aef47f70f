package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/beacon/internal/output"
)

var statsProject string

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show event dashboard statistics",
	Long: `Show aggregate statistics from the local event database:
total counts, today's activity, a per-type breakdown, and the most
recent sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statsRun()
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsProject, "project", "", "Scope statistics to a single project id")
	rootCmd.AddCommand(statsCmd)
}

func statsRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	stats, err := s.Stats(ctx, statsProject)
	if err != nil {
		return err
	}

	ui.Info("Projects: %d   Sessions: %d   Events: %d   Today: %d",
		stats.TotalProjects, stats.TotalSessions, stats.TotalEvents, stats.EventsToday)
	fmt.Fprintln(ui.Out)

	if len(stats.EventsByType) > 0 {
		types := make([]string, 0, len(stats.EventsByType))
		for t := range stats.EventsByType {
			types = append(types, t)
		}
		sort.Strings(types)

		table := ui.Table([]string{"Event Type", "Count"})
		for _, t := range types {
			_ = table.Append([]string{
				output.EventTypeColor(t),
				strconv.FormatInt(stats.EventsByType[t], 10),
			})
		}
		_ = table.Render()
		fmt.Fprintln(ui.Out)
	}

	if len(stats.RecentSessions) > 0 {
		table := ui.Table([]string{"Session", "Project", "App", "Started", "Events"})
		for _, sess := range stats.RecentSessions {
			shortID := sess.ID
			if len(shortID) > 12 {
				shortID = shortID[:12]
			}
			_ = table.Append([]string{
				shortID,
				sess.ProjectID,
				sess.SourceApp,
				sess.StartedAt,
				strconv.Itoa(sess.EventCount),
			})
		}
		_ = table.Render()
	}

	return nil
}
