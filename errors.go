package raidsim

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceFailed is matched by every DeviceError. It marks a device
	// that has just been taken out of service.
	ErrDeviceFailed = errors.New("raidsim: device failed")

	// ErrInvalidDevice is returned when a device index is outside the table.
	ErrInvalidDevice = errors.New("raidsim: invalid device index")

	// ErrInvalidSector is returned for negative logical sectors.
	ErrInvalidSector = errors.New("raidsim: invalid logical sector")

	// ErrTooFewDevices is returned when an array is built from fewer than
	// MinDevices paths.
	ErrTooFewDevices = errors.New("raidsim: at least two devices are required")

	// ErrUnknownDriver is returned when no device driver has the requested
	// name.
	ErrUnknownDriver = errors.New("raidsim: unknown device driver")

	// ErrClosed is returned when a function attempts to use a device or
	// table that has been closed.
	ErrClosed = errors.New("raidsim: closed")
)

// FailureKind classifies why a sector I/O took a device out of service.
type FailureKind int

const (
	DeviceAlreadyFailed FailureKind = iota
	SeekMismatch
	ShortIO
)

func (k FailureKind) String() string {
	switch k {
	case DeviceAlreadyFailed:
		return "already-failed"
	case SeekMismatch:
		return "seek-mismatch"
	case ShortIO:
		return "short-io"
	}
	return "unknown"
}

// DeviceError reports the device that failed during a sector I/O. All kinds
// are externally equivalent: the device is now Failed.
type DeviceError struct {
	Device int
	Kind   FailureKind
	Err    error
}

func (e *DeviceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("raidsim: device %d failed (%s)", e.Device, e.Kind)
	}
	return fmt.Sprintf("raidsim: device %d failed (%s): %v", e.Device, e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrDeviceFailed) true for every DeviceError.
func (e *DeviceError) Is(target error) bool {
	return target == ErrDeviceFailed
}

// FailedDevice extracts the failed device index from err, if err carries one.
func FailedDevice(err error) (int, bool) {
	var de *DeviceError
	if errors.As(err, &de) {
		return de.Device, true
	}
	return 0, false
}
