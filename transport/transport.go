// transport moves single sectors to and from the member devices of an
// array. Any I/O that does not move exactly one sector takes the device out
// of service: a failed I/O is the failure detector.
package transport

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/coreos/pkg/capnslog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreos/raidsim"
	"github.com/coreos/raidsim/devices"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/raidsim", "transport")

var (
	promSectors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raidsim_transport_sectors",
		Help: "Number of sectors moved, by device and operation",
	}, []string{"device", "op"})
	promSectorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raidsim_transport_failures",
		Help: "Number of sector I/Os that failed, by device and failure kind",
	}, []string{"device", "kind"})
)

func init() {
	prometheus.MustRegister(promSectors)
	prometheus.MustRegister(promSectorFailures)
}

// Op is the direction of a sector I/O.
type Op int

const (
	Read Op = iota
	Write
)

func (o Op) String() string {
	if o == Write {
		return "Write"
	}
	return "Read"
}

// Access records one attempted sector I/O.
type Access struct {
	Device int
	Sector int64
	Op     Op
	// Err is nil on success, and a *raidsim.DeviceError otherwise.
	Err error
}

func (a Access) String() string {
	if a.Err != nil {
		return fmt.Sprintf("%s dev %d sector %d: %v", a.Op, a.Device, a.Sector, a.Err)
	}
	return fmt.Sprintf("%s dev %d sector %d", a.Op, a.Device, a.Sector)
}

// Transport performs sector I/O against the devices of a table and keeps
// the list of accesses made since the last Reset.
type Transport struct {
	table *devices.Table
	trace []Access
}

func New(table *devices.Table) *Transport {
	return &Transport{table: table}
}

// Reset clears the access trace before a new logical operation.
func (t *Transport) Reset() { t.trace = t.trace[:0] }

// Trace returns a copy of the accesses made since the last Reset.
func (t *Transport) Trace() []Access {
	out := make([]Access, len(t.trace))
	copy(out, t.trace)
	return out
}

// ReadSector reads one sector at byte offset off of device dev into buf.
func (t *Transport) ReadSector(ctx context.Context, dev int, off int64, buf []byte) error {
	return t.do(ctx, Read, dev, off, buf)
}

// WriteSector writes one sector from buf at byte offset off of device dev.
func (t *Transport) WriteSector(ctx context.Context, dev int, off int64, buf []byte) error {
	return t.do(ctx, Write, dev, off, buf)
}

func (t *Transport) do(ctx context.Context, op Op, dev int, off int64, buf []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(buf) < raidsim.SectorSize {
		return io.ErrShortBuffer
	}
	buf = buf[:raidsim.SectorSize]
	a := Access{Device: dev, Sector: off / raidsim.SectorSize, Op: op}

	err := t.transfer(op, dev, off, buf)
	if err != nil {
		a.Err = err
		t.trace = append(t.trace, a)
		clog.Debugf("%v", a)
		return err
	}
	promSectors.WithLabelValues(strconv.Itoa(dev), op.String()).Inc()
	t.trace = append(t.trace, a)
	clog.Tracef("%v", a)
	return nil
}

func (t *Transport) transfer(op Op, dev int, off int64, buf []byte) error {
	h, ok := t.table.Handle(dev)
	if !ok {
		return t.failed(dev, raidsim.DeviceAlreadyFailed, nil)
	}

	pos, err := h.Seek(off, io.SeekStart)
	if err != nil || pos != off {
		if err == nil {
			err = fmt.Errorf("seek to %d landed at %d", off, pos)
		}
		return t.failed(dev, raidsim.SeekMismatch, err)
	}

	var n int
	if op == Write {
		n, err = h.Write(buf)
		if n == len(buf) && t.table.Sync() {
			if serr := h.Sync(); serr != nil {
				return t.failed(dev, raidsim.ShortIO, serr)
			}
		}
	} else {
		n, err = h.Read(buf)
	}
	if n != len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return t.failed(dev, raidsim.ShortIO, fmt.Errorf("transferred %d of %d bytes: %v", n, len(buf), err))
	}
	return nil
}

// failed builds the error for a failed I/O on dev and, unless the device
// was already out of service, takes it down.
func (t *Transport) failed(dev int, kind raidsim.FailureKind, cause error) error {
	de := &raidsim.DeviceError{Device: dev, Kind: kind, Err: cause}
	promSectorFailures.WithLabelValues(strconv.Itoa(dev), kind.String()).Inc()
	if kind != raidsim.DeviceAlreadyFailed {
		t.table.Fail(dev, de)
	}
	return de
}
