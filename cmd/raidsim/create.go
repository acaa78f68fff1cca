package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/coreos/raidsim/storage"
)

var createSize string

var createCommand = &cobra.Command{
	Use:   "create PATH...",
	Short: "create zero-filled backing files for an array",
	Run:   createAction,
}

func init() {
	createCommand.Flags().StringVarP(&createSize, "size", "", "16MiB", "Size of each backing file")
}

func createAction(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		cmd.Usage()
		die("no paths given")
	}
	size, err := humanize.ParseBytes(createSize)
	if err != nil {
		die("error parsing size: %s", err)
	}
	for _, p := range args {
		if err := storage.CreateDevice(p, size); err != nil {
			die("couldn't create %s: %v", p, err)
		}
		got, err := storage.DeviceSize(p)
		if err != nil {
			die("couldn't stat %s: %v", p, err)
		}
		fmt.Printf("%s: %s\n", p, humanize.IBytes(got))
	}
}
