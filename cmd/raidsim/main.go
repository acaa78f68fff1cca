package main

import (
	"fmt"
	"os"

	"github.com/coreos/pkg/capnslog"
	"github.com/spf13/cobra"

	"github.com/coreos/raidsim"
	"github.com/coreos/raidsim/internal/flagconfig"

	// Register all the device drivers.
	_ "github.com/coreos/raidsim/storage"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/raidsim", "cmd")

var (
	debug  bool
	logpkg string
)

var rootCommand = &cobra.Command{
	Use:   "raidsim",
	Short: "RAID-5 array simulator",
	Long: `Runs a RAID-5 style array over a set of backing devices, reading
READ, WRITE, KILL and REPAIR commands from standard input.`,
	PersistentPreRun: configure,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Usage()
		os.Exit(1)
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("raidsim\nVersion: %s\n", raidsim.Version)
		os.Exit(0)
	},
}

func init() {
	rootCommand.PersistentFlags().BoolVarP(&debug, "debug", "", false, "Turn on debug output")
	rootCommand.PersistentFlags().StringVarP(&logpkg, "logpkg", "", "", "Specific package logging")
	flagconfig.AddConfigFlags(rootCommand.PersistentFlags())
	rootCommand.AddCommand(runCommand)
	rootCommand.AddCommand(createCommand)
	rootCommand.AddCommand(devicesCommand)
	rootCommand.AddCommand(incidentsCommand)
	rootCommand.AddCommand(versionCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		die("%v", err)
	}
}

func die(why string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, why+"\n", args...)
	os.Exit(1)
}

func configure(cmd *cobra.Command, args []string) {
	switch {
	case debug:
		capnslog.SetGlobalLogLevel(capnslog.DEBUG)
	default:
		capnslog.SetGlobalLogLevel(capnslog.INFO)
	}
	if logpkg != "" {
		capnslog.SetGlobalLogLevel(capnslog.NOTICE)
		rl := capnslog.MustRepoLogger("github.com/coreos/raidsim")
		llc, err := rl.ParseLogLevelConfig(logpkg)
		if err != nil {
			die("error parsing logpkg: %s", err)
		}
		rl.SetLogLevel(llc)
	}
}

func mustBuildConfig() raidsim.Config {
	cfg, err := flagconfig.BuildConfigFromFlags()
	if err != nil {
		die("%v", err)
	}
	return cfg
}
