package storage

import (
	"fmt"
	"io"
	"os"

	"github.com/coreos/raidsim"
)

func init() {
	raidsim.RegisterDeviceDriver("file", openFileDevice)
}

// fileDevice is a regular file or a device node opened read/write.
type fileDevice struct {
	*os.File
}

var _ raidsim.Device = &fileDevice{}

func openFileDevice(path string, cfg raidsim.Config) (raidsim.Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0777|os.ModeDevice)
	opened("file", err)
	if err != nil {
		return nil, err
	}
	return &fileDevice{File: f}, nil
}

func (d *fileDevice) Sync() error {
	promDeviceSyncs.WithLabelValues("file").Inc()
	return d.File.Sync()
}

func (d *fileDevice) Close() error {
	promDeviceCloses.WithLabelValues("file").Inc()
	return d.File.Close()
}

// CreateDevice creates (or truncates) a zero-filled backing file of size
// bytes at path. The size must be a whole number of sectors.
func CreateDevice(path string, size uint64) error {
	if size%raidsim.SectorSize != 0 {
		return fmt.Errorf("device size %d is not a multiple of the sector size %d", size, raidsim.SectorSize)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	clog.Infof("created device %s (%d bytes)", path, size)
	return f.Truncate(int64(size))
}

// DeviceSize returns the capacity in bytes of the file or device at path.
func DeviceSize(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	// Seeking to the end works for both regular files and block devices.
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return uint64(end), nil
}
