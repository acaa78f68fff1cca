package raidsim

// DefaultDriver is the driver used when Config.Driver is empty.
const DefaultDriver = "file"

type Config struct {
	// Driver names the registered device driver used to open paths.
	Driver string
	// DeviceSize is the capacity, in bytes, of devices created by drivers
	// that allocate their own backing (temp) and by `raidsim create`.
	DeviceSize uint64
	// Sync forces an fsync after every sector write.
	Sync bool

	MetricsAddress string
	JournalPath    string
}

func (c Config) driver() string {
	if c.Driver == "" {
		return DefaultDriver
	}
	return c.Driver
}
