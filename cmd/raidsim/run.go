package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/coreos/raidsim"
	"github.com/coreos/raidsim/devices"
	"github.com/coreos/raidsim/dispatch"
	"github.com/coreos/raidsim/internal/http"
	"github.com/coreos/raidsim/journal"
	"github.com/coreos/raidsim/raid"
	"github.com/coreos/raidsim/storage"
)

var runCommand = &cobra.Command{
	Use:   "run DEVICE DEVICE...",
	Short: "run an array, reading commands from stdin",
	Long: `Opens every DEVICE as a member of the array, in order, and executes one
"OPNAME PARAM" command per line of standard input:

  READ sector     read a logical sector
  WRITE sector    write a logical sector
  KILL device     take a member out of service
  REPAIR device   reopen a member`,
	Run: runAction,
}

func runAction(cmd *cobra.Command, args []string) {
	if len(args) < raidsim.MinDevices {
		die("need at least %d device paths, got %d", raidsim.MinDevices, len(args))
	}
	cfg := mustBuildConfig()
	if cfg.Driver == "temp" && cfg.DeviceSize == 0 {
		cfg.DeviceSize = storage.DefaultTempSize
	}

	tbl, err := devices.New(args, cfg)
	if err != nil {
		die("couldn't create device table: %v", err)
	}
	array, err := raid.New(tbl)
	if err != nil {
		die("couldn't create array: %v", err)
	}
	clog.Debugf("%s", array.Layout().Describe(array.Devices()))

	var j *journal.Journal
	if cfg.JournalPath != "" {
		j, err = journal.Open(cfg.JournalPath)
		if err != nil {
			die("couldn't open journal %s: %v", cfg.JournalPath, err)
		}
		tbl.SetRecorder(j)
	}

	// No die past this point: os.Exit skips deferred closes.
	if j != nil {
		defer j.Close()
	}
	openErrs := tbl.OpenAll()
	defer tbl.CloseAll()

	d := dispatch.New(array, os.Stdout)
	d.ReportOpenErrors(openErrs)

	if cfg.MetricsAddress != "" {
		go func() {
			if err := http.ServeHTTP(cfg.MetricsAddress, array); err != nil {
				clog.Errorf("http: %v", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := d.Run(ctx, os.Stdin); err != nil && err != context.Canceled {
		clog.Errorf("reading commands: %v", err)
	}
}
