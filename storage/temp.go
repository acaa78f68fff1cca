package storage

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/coreos/raidsim"
)

func init() {
	raidsim.RegisterDeviceDriver("temp", openTempDevice)
}

// DefaultTempSize is used for temp devices opened without a configured size.
const DefaultTempSize = 1024 * raidsim.SectorSize

// tempDisks holds the contents of every temp device by path, so a device
// that is closed and reopened finds its data again.
var tempDisks = struct {
	mut   sync.Mutex
	disks map[string][]byte
}{disks: make(map[string][]byte)}

// CreateTemp allocates a zero-filled in-memory device of size bytes under
// path, replacing any existing one.
func CreateTemp(path string, size uint64) {
	tempDisks.mut.Lock()
	defer tempDisks.mut.Unlock()
	tempDisks.disks[path] = make([]byte, size)
}

// RemoveTemp deletes the in-memory device at path. Handles that are already
// open keep working; new opens fail.
func RemoveTemp(path string) {
	tempDisks.mut.Lock()
	defer tempDisks.mut.Unlock()
	delete(tempDisks.disks, path)
}

// TempContents returns a copy of the in-memory device at path.
func TempContents(path string) ([]byte, bool) {
	tempDisks.mut.Lock()
	defer tempDisks.mut.Unlock()
	d, ok := tempDisks.disks[path]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(d))
	copy(out, d)
	return out, true
}

// openTempDevice opens an in-memory device. Unknown paths are created with
// cfg.DeviceSize bytes when it is set, and fail otherwise.
func openTempDevice(path string, cfg raidsim.Config) (raidsim.Device, error) {
	tempDisks.mut.Lock()
	defer tempDisks.mut.Unlock()
	d, ok := tempDisks.disks[path]
	if !ok {
		if cfg.DeviceSize == 0 {
			opened("temp", os.ErrNotExist)
			return nil, &os.PathError{Op: "open", Path: path, Err: os.ErrNotExist}
		}
		d = make([]byte, cfg.DeviceSize)
		tempDisks.disks[path] = d
	}
	opened("temp", nil)
	return &tempDevice{path: path, data: d}, nil
}

type tempDevice struct {
	path   string
	data   []byte
	pos    int64
	closed bool
}

func (t *tempDevice) Seek(offset int64, whence int) (int64, error) {
	if t.closed {
		return 0, raidsim.ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = t.pos + offset
	case io.SeekEnd:
		abs = int64(len(t.data)) + offset
	default:
		return 0, errors.New("temp: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("temp: negative position")
	}
	t.pos = abs
	return abs, nil
}

func (t *tempDevice) Read(p []byte) (int, error) {
	if t.closed {
		return 0, raidsim.ErrClosed
	}
	tempDisks.mut.Lock()
	defer tempDisks.mut.Unlock()
	if t.pos >= int64(len(t.data)) {
		return 0, io.EOF
	}
	n := copy(p, t.data[t.pos:])
	t.pos += int64(n)
	return n, nil
}

func (t *tempDevice) Write(p []byte) (int, error) {
	if t.closed {
		return 0, raidsim.ErrClosed
	}
	tempDisks.mut.Lock()
	defer tempDisks.mut.Unlock()
	if t.pos >= int64(len(t.data)) {
		return 0, io.ErrShortWrite
	}
	n := copy(t.data[t.pos:], p)
	t.pos += int64(n)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (t *tempDevice) Sync() error {
	if t.closed {
		return raidsim.ErrClosed
	}
	promDeviceSyncs.WithLabelValues("temp").Inc()
	return nil
}

func (t *tempDevice) Close() error {
	if t.closed {
		return raidsim.ErrClosed
	}
	t.closed = true
	promDeviceCloses.WithLabelValues("temp").Inc()
	return nil
}
