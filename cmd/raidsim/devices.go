package main

import (
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/coreos/raidsim"
)

var devicesCommand = &cobra.Command{
	Use:   "devices PATH...",
	Short: "show whether each backing device can be opened, and its size",
	Run:   devicesAction,
}

func devicesAction(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		cmd.Usage()
		die("no paths given")
	}
	cfg := mustBuildConfig()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Index", "Path", "Size", "Sectors", "Status"})
	table.SetBorder(false)
	for i, p := range args {
		size, err := probe(p, cfg)
		if err != nil {
			table.Append([]string{strconv.Itoa(i), p, "-", "-", err.Error()})
			continue
		}
		table.Append([]string{
			strconv.Itoa(i),
			p,
			humanize.IBytes(size),
			strconv.FormatUint(size/raidsim.SectorSize, 10),
			raidsim.DeviceOpen.String(),
		})
	}
	table.Render()
}

func probe(path string, cfg raidsim.Config) (uint64, error) {
	dev, err := raidsim.OpenDevice(path, cfg)
	if err != nil {
		return 0, err
	}
	defer dev.Close()
	end, err := dev.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return uint64(end), nil
}
