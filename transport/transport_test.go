package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreos/raidsim"
	"github.com/coreos/raidsim/devices"
	"github.com/coreos/raidsim/storage"
)

// flakyDevice is an in-memory device that can be told to misbehave.
type flakyDevice struct {
	data      []byte
	pos       int64
	seekSkew  int64
	shortRead bool
	syncErr   error
	syncs     int
	closed    bool
}

func (d *flakyDevice) Seek(off int64, whence int) (int64, error) {
	d.pos = off + d.seekSkew
	return d.pos, nil
}

func (d *flakyDevice) Read(p []byte) (int, error) {
	if d.shortRead {
		return len(p) / 2, nil
	}
	if d.pos >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[d.pos:])
	d.pos += int64(n)
	return n, nil
}

func (d *flakyDevice) Write(p []byte) (int, error) {
	n := copy(d.data[d.pos:], p)
	d.pos += int64(n)
	return n, nil
}

func (d *flakyDevice) Sync() error {
	if d.syncErr != nil {
		return d.syncErr
	}
	d.syncs++
	return nil
}

func (d *flakyDevice) Close() error { d.closed = true; return nil }

func flakyTable(t *testing.T, devs ...*flakyDevice) *devices.Table {
	return flakyTableWithConfig(t, raidsim.Config{}, devs...)
}

func flakyTableWithConfig(t *testing.T, cfg raidsim.Config, devs ...*flakyDevice) *devices.Table {
	paths := make([]string, len(devs))
	byPath := make(map[string]*flakyDevice)
	for i, d := range devs {
		paths[i] = string(rune('a' + i))
		byPath[paths[i]] = d
	}
	tbl, err := devices.NewWithOpener(paths, cfg, func(p string, _ raidsim.Config) (raidsim.Device, error) {
		return byPath[p], nil
	})
	require.NoError(t, err)
	require.Empty(t, tbl.OpenAll())
	return tbl
}

func newFlaky(sectors int) *flakyDevice {
	return &flakyDevice{data: make([]byte, sectors*raidsim.SectorSize)}
}

func TestRoundTrip(t *testing.T) {
	var paths []string
	for _, p := range []string{"TestRoundTrip-0", "TestRoundTrip-1"} {
		storage.CreateTemp(p, 8*raidsim.SectorSize)
		defer storage.RemoveTemp(p)
		paths = append(paths, p)
	}
	tbl, err := devices.New(paths, raidsim.Config{Driver: "temp"})
	require.NoError(t, err)
	require.Empty(t, tbl.OpenAll())
	defer tbl.CloseAll()

	tr := New(tbl)
	ctx := context.Background()
	out := bytes.Repeat([]byte{0x5a}, raidsim.SectorSize)
	require.NoError(t, tr.WriteSector(ctx, 1, 3*raidsim.SectorSize, out))

	in := make([]byte, raidsim.SectorSize)
	require.NoError(t, tr.ReadSector(ctx, 1, 3*raidsim.SectorSize, in))
	require.Equal(t, out, in)

	require.Equal(t, []Access{
		{Device: 1, Sector: 3, Op: Write},
		{Device: 1, Sector: 3, Op: Read},
	}, tr.Trace())
	tr.Reset()
	require.Empty(t, tr.Trace())
}

func TestAlreadyFailed(t *testing.T) {
	a, b := newFlaky(4), newFlaky(4)
	tbl := flakyTable(t, a, b)
	tr := New(tbl)
	require.NoError(t, tbl.Close(0))

	err := tr.ReadSector(context.Background(), 0, 0, make([]byte, raidsim.SectorSize))
	require.True(t, errors.Is(err, raidsim.ErrDeviceFailed))
	var de *raidsim.DeviceError
	require.True(t, errors.As(err, &de))
	require.Equal(t, 0, de.Device)
	require.Equal(t, raidsim.DeviceAlreadyFailed, de.Kind)
	require.Len(t, tr.Trace(), 1)
}

func TestSeekMismatchFailsDevice(t *testing.T) {
	a, b := newFlaky(4), newFlaky(4)
	b.seekSkew = 512
	tbl := flakyTable(t, a, b)
	tr := New(tbl)

	err := tr.WriteSector(context.Background(), 1, raidsim.SectorSize, make([]byte, raidsim.SectorSize))
	dev, ok := raidsim.FailedDevice(err)
	require.True(t, ok)
	require.Equal(t, 1, dev)
	var de *raidsim.DeviceError
	require.True(t, errors.As(err, &de))
	require.Equal(t, raidsim.SeekMismatch, de.Kind)

	require.Equal(t, raidsim.DeviceFailed, tbl.Status(1))
	require.True(t, b.closed)
	require.Equal(t, raidsim.DeviceOpen, tbl.Status(0))
}

func TestShortReadFailsDevice(t *testing.T) {
	a, b := newFlaky(4), newFlaky(4)
	a.shortRead = true
	tbl := flakyTable(t, a, b)
	tr := New(tbl)

	err := tr.ReadSector(context.Background(), 0, 0, make([]byte, raidsim.SectorSize))
	var de *raidsim.DeviceError
	require.True(t, errors.As(err, &de))
	require.Equal(t, raidsim.ShortIO, de.Kind)
	require.Equal(t, 0, de.Device)
	require.Equal(t, raidsim.DeviceFailed, tbl.Status(0))

	// A second attempt sees the device as already failed.
	err = tr.ReadSector(context.Background(), 0, 0, make([]byte, raidsim.SectorSize))
	require.True(t, errors.As(err, &de))
	require.Equal(t, raidsim.DeviceAlreadyFailed, de.Kind)
}

func TestPastEndFailsDevice(t *testing.T) {
	a, b := newFlaky(4), newFlaky(4)
	tbl := flakyTable(t, a, b)
	tr := New(tbl)

	err := tr.ReadSector(context.Background(), 1, 4*raidsim.SectorSize, make([]byte, raidsim.SectorSize))
	require.True(t, errors.Is(err, raidsim.ErrDeviceFailed))
	require.Equal(t, raidsim.DeviceFailed, tbl.Status(1))
}

func TestCancelledContext(t *testing.T) {
	a, b := newFlaky(4), newFlaky(4)
	tbl := flakyTable(t, a, b)
	tr := New(tbl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tr.ReadSector(ctx, 0, 0, make([]byte, raidsim.SectorSize))
	require.Equal(t, context.Canceled, err)
	require.Equal(t, raidsim.DeviceOpen, tbl.Status(0))
	require.Empty(t, tr.Trace())
}

func TestShortBuffer(t *testing.T) {
	tbl := flakyTable(t, newFlaky(1), newFlaky(1))
	tr := New(tbl)
	err := tr.ReadSector(context.Background(), 0, 0, make([]byte, 10))
	require.Equal(t, io.ErrShortBuffer, err)
	require.Equal(t, raidsim.DeviceOpen, tbl.Status(0))
}

func TestSyncedWrites(t *testing.T) {
	a, b := newFlaky(4), newFlaky(4)
	tr := New(flakyTableWithConfig(t, raidsim.Config{Sync: true}, a, b))
	ctx := context.Background()

	require.NoError(t, tr.WriteSector(ctx, 0, 0, make([]byte, raidsim.SectorSize)))
	require.NoError(t, tr.WriteSector(ctx, 0, raidsim.SectorSize, make([]byte, raidsim.SectorSize)))
	require.NoError(t, tr.ReadSector(ctx, 0, 0, make([]byte, raidsim.SectorSize)))
	require.Equal(t, 2, a.syncs)

	// Without Sync the device is never flushed.
	c, d := newFlaky(4), newFlaky(4)
	tr = New(flakyTable(t, c, d))
	require.NoError(t, tr.WriteSector(ctx, 1, 0, make([]byte, raidsim.SectorSize)))
	require.Equal(t, 0, d.syncs)
}

func TestSyncFailureFailsDevice(t *testing.T) {
	a, b := newFlaky(4), newFlaky(4)
	b.syncErr = errors.New("disk on fire")
	tbl := flakyTableWithConfig(t, raidsim.Config{Sync: true}, a, b)
	tr := New(tbl)

	err := tr.WriteSector(context.Background(), 1, 0, make([]byte, raidsim.SectorSize))
	var de *raidsim.DeviceError
	require.True(t, errors.As(err, &de))
	require.Equal(t, 1, de.Device)
	require.Equal(t, raidsim.ShortIO, de.Kind)
	require.True(t, errors.Is(err, b.syncErr))
	require.Equal(t, raidsim.DeviceFailed, tbl.Status(1))
	require.True(t, b.closed)
	require.Equal(t, raidsim.DeviceOpen, tbl.Status(0))

	trace := tr.Trace()
	require.Len(t, trace, 1)
	require.Equal(t, Write, trace[0].Op)
	require.Error(t, trace[0].Err)
}
