package raidsim

import (
	"io"
	"sort"
)

const (
	// SectorSize is the number of bytes moved by a single sector I/O.
	SectorSize = 4 * 1024

	// SectorsPerBlock is the number of consecutive logical sectors a data
	// device holds for one stripe.
	SectorsPerBlock = 4

	// MinDevices is the smallest array that still has both data and parity.
	MinDevices = 2
)

// Device is a single open backing device. Devices are positioned with Seek
// and transfer whole sectors with Read and Write.
type Device interface {
	io.ReadWriteSeeker
	io.Closer

	// Sync flushes any buffered writes to stable storage.
	Sync() error
}

// DeviceState is the health of one slot in a device table.
type DeviceState int

const (
	DeviceOpen DeviceState = iota
	DeviceFailed
)

func (s DeviceState) String() string {
	switch s {
	case DeviceOpen:
		return "open"
	case DeviceFailed:
		return "failed"
	}
	return "unknown"
}

func (s DeviceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// OpenDeviceFunc opens the device at path for reading and writing.
type OpenDeviceFunc func(path string, cfg Config) (Device, error)

var deviceDrivers map[string]OpenDeviceFunc

// RegisterDeviceDriver is the hook used by implementations of device drivers
// to register themselves. It is usually called in the init() of the package
// that implements the driver.
func RegisterDeviceDriver(name string, newFunc OpenDeviceFunc) {
	if deviceDrivers == nil {
		deviceDrivers = make(map[string]OpenDeviceFunc)
	}

	if _, ok := deviceDrivers[name]; ok {
		panic("raidsim: attempted to register device driver " + name + " twice")
	}

	deviceDrivers[name] = newFunc
}

// DeviceOpener returns the open function for the named driver.
func DeviceOpener(name string) (OpenDeviceFunc, error) {
	f, ok := deviceDrivers[name]
	if !ok {
		return nil, ErrUnknownDriver
	}
	return f, nil
}

// OpenDevice opens path with the driver named in cfg.
func OpenDevice(path string, cfg Config) (Device, error) {
	f, err := DeviceOpener(cfg.driver())
	if err != nil {
		return nil, err
	}
	clog.Debugf("opening device %s with driver %s", path, cfg.driver())
	return f(path, cfg)
}

// DeviceDrivers lists the registered driver names in sorted order.
func DeviceDrivers() []string {
	var out []string
	for k := range deviceDrivers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
