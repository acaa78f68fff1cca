package storage

import (
	"errors"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/coreos/raidsim"
)

func init() {
	raidsim.RegisterDeviceDriver("mmap", openMFileDevice)
}

// MFile is a backing file mapped into memory. Reads and writes past the end
// of the mapping are short, like they are on a fixed-size device.
type MFile struct {
	mmap mmap.MMap
	size int64
	pos  int64
}

var _ raidsim.Device = &MFile{}

func openMFileDevice(path string, _ raidsim.Config) (raidsim.Device, error) {
	m, err := OpenMFile(path)
	opened("mmap", err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func OpenMFile(path string) (*MFile, error) {
	var mf MFile

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	// We don't need the file handle after we mmap it.
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	mf.size = st.Size()
	if mf.size == 0 {
		return nil, errors.New("cannot map an empty file")
	}
	if mf.size%raidsim.SectorSize != 0 {
		return nil, errors.New("file size is not a multiple of the sector size")
	}
	mf.mmap, err = mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &mf, nil
}

func (m *MFile) Seek(offset int64, whence int) (int64, error) {
	if m.mmap == nil {
		return 0, raidsim.ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = m.pos + offset
	case io.SeekEnd:
		abs = m.size + offset
	default:
		return 0, errors.New("mfile: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("mfile: negative position")
	}
	m.pos = abs
	return abs, nil
}

func (m *MFile) Read(p []byte) (int, error) {
	if m.mmap == nil {
		return 0, raidsim.ErrClosed
	}
	if m.pos >= m.size {
		return 0, io.EOF
	}
	n := copy(p, m.mmap[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MFile) Write(p []byte) (int, error) {
	if m.mmap == nil {
		return 0, raidsim.ErrClosed
	}
	if m.pos >= m.size {
		return 0, io.ErrShortWrite
	}
	n := copy(m.mmap[m.pos:], p)
	m.pos += int64(n)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}

// Size returns the capacity of the mapping in bytes.
func (m *MFile) Size() int64 { return m.size }

func (m *MFile) Sync() error {
	if m.mmap == nil {
		return raidsim.ErrClosed
	}
	promDeviceSyncs.WithLabelValues("mmap").Inc()
	return m.mmap.Flush()
}

func (m *MFile) Close() error {
	if m.mmap == nil {
		return nil
	}
	promDeviceCloses.WithLabelValues("mmap").Inc()
	if err := m.mmap.Flush(); err != nil {
		return err
	}
	err := m.mmap.Unmap()
	m.mmap = nil
	return err
}
