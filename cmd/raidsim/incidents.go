package main

import (
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/coreos/raidsim/journal"
)

var incidentsCommand = &cobra.Command{
	Use:   "incidents",
	Short: "list the device incidents recorded in a journal",
	Run:   incidentsAction,
}

func incidentsAction(cmd *cobra.Command, args []string) {
	cfg := mustBuildConfig()
	if cfg.JournalPath == "" {
		die("--journal is required")
	}
	if _, err := os.Stat(cfg.JournalPath); err != nil {
		die("couldn't open journal: %v", err)
	}
	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		die("couldn't open journal: %v", err)
	}
	defer j.Close()
	entries, err := j.List()
	if err != nil {
		die("couldn't read journal: %v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "When", "Device", "Path", "Kind", "Error"})
	table.SetBorder(false)
	for _, e := range entries {
		table.Append([]string{
			e.ID,
			humanize.Time(e.Time),
			strconv.Itoa(e.Device),
			e.Path,
			e.Kind,
			e.Error,
		})
	}
	table.Render()
}
