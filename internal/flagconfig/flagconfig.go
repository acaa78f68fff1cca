// flagconfig is a generic set of flags dedicated to configuring an array.
// Every flag takes its default from a RAIDSIM_* environment variable when
// one is set.
package flagconfig

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
	flag "github.com/spf13/pflag"

	"github.com/coreos/raidsim"
)

// EnvPrefix is the prefix of the environment variables read for defaults.
const EnvPrefix = "raidsim"

type envDefaults struct {
	Driver     string `default:"file"`
	DeviceSize string `split_words:"true"`
	Sync       bool
	HTTP       string
	Journal    string
}

var (
	driver        string
	deviceSizeStr string
	syncWrites    bool
	httpAddress   string
	journalPath   string
)

func AddConfigFlags(set *flag.FlagSet) {
	var env envDefaults
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		fmt.Fprintf(os.Stderr, "error reading environment: %s\n", err)
		os.Exit(1)
	}
	set.StringVarP(&driver, "driver", "", env.Driver, "Device driver used to open device paths (file, mmap, temp)")
	set.StringVarP(&deviceSizeStr, "device-size", "", env.DeviceSize, "Size of devices allocated by the temp driver")
	set.BoolVarP(&syncWrites, "sync", "", env.Sync, "Sync every sector write to stable storage")
	set.StringVarP(&httpAddress, "http", "", env.HTTP, "Address to serve metrics and device status on")
	set.StringVarP(&journalPath, "journal", "", env.Journal, "Path to the incident journal")
}

func BuildConfigFromFlags() (raidsim.Config, error) {
	var size uint64
	if deviceSizeStr != "" {
		var err error
		size, err = humanize.ParseBytes(deviceSizeStr)
		if err != nil {
			return raidsim.Config{}, fmt.Errorf("error parsing device-size: %s", err)
		}
		if size%raidsim.SectorSize != 0 {
			return raidsim.Config{}, fmt.Errorf("device-size %s is not a multiple of %s", deviceSizeStr, humanize.IBytes(raidsim.SectorSize))
		}
	}
	if _, err := raidsim.DeviceOpener(driver); err != nil {
		return raidsim.Config{}, fmt.Errorf("invalid driver %q; use one of %v", driver, raidsim.DeviceDrivers())
	}
	return raidsim.Config{
		Driver:         driver,
		DeviceSize:     size,
		Sync:           syncWrites,
		MetricsAddress: httpAddress,
		JournalPath:    journalPath,
	}, nil
}
