// raid implements fault tolerant sector I/O over a RAID-5 style array:
// normal reads and parity-maintaining writes while every member is healthy,
// and degraded reads and writes over the rest of the stripe while one is not.
//
// Payloads are not combined: the engine reproduces the access pattern and
// the failure handling of RAID-5, not its parity arithmetic.
package raid

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"github.com/coreos/pkg/capnslog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreos/raidsim"
	"github.com/coreos/raidsim/devices"
	"github.com/coreos/raidsim/layout"
	"github.com/coreos/raidsim/transport"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/raidsim", "raid")

var (
	promOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raidsim_raid_ops",
		Help: "Number of logical operations, by operation and result",
	}, []string{"op", "result"})
	promDegradedOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raidsim_raid_degraded_ops",
		Help: "Number of logical operations that left the normal path, by state",
	}, []string{"state"})
	promStaleSectors = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "raidsim_raid_stale_sectors",
		Help: "Number of sectors on each member missing a write since it failed",
	}, []string{"device"})
)

func init() {
	prometheus.MustRegister(promOps)
	prometheus.MustRegister(promDegradedOps)
	prometheus.MustRegister(promStaleSectors)
}

// State is the path a logical operation took.
type State int

const (
	// Normal is a direct read, or a write that kept parity up to date.
	Normal State = iota
	// DegradedRead reconstructs a sector from the rest of its stripe.
	DegradedRead
	// DegradedWriteNormalTarget writes a healthy target while the stripe's
	// parity member is down.
	DegradedWriteNormalTarget
	// DegradedWriteFailedTarget updates the stripe around an unreachable
	// target: parity is written, the other data members are read.
	DegradedWriteFailedTarget
)

var stateNames = map[State]string{
	Normal:                    "normal",
	DegradedRead:              "degraded-read",
	DegradedWriteNormalTarget: "degraded-write-normal-target",
	DegradedWriteFailedTarget: "degraded-write-failed-target",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Result describes one logical operation.
type Result struct {
	Sector   int64
	Location layout.Location
	State    State
	// Accesses lists every sector I/O attempted, in order.
	Accesses []transport.Access
}

// Array is a RAID-5 style array over the devices of a table. An Array runs
// one logical operation at a time.
type Array struct {
	layout  layout.Layout
	table   *devices.Table
	tr      *transport.Transport
	scratch []byte

	// mut guards stale, which status readers may query concurrently.
	mut   sync.Mutex
	stale []*roaring.Bitmap
}

// New builds an array over table. The table's devices may be opened before
// or after.
func New(table *devices.Table) (*Array, error) {
	l, err := layout.New(table.Len())
	if err != nil {
		return nil, err
	}
	a := &Array{
		layout:  l,
		table:   table,
		tr:      transport.New(table),
		scratch: make([]byte, raidsim.SectorSize),
		stale:   make([]*roaring.Bitmap, table.Len()),
	}
	for i := range a.stale {
		a.stale[i] = roaring.New()
		promStaleSectors.WithLabelValues(strconv.Itoa(i)).Set(0)
	}
	return a, nil
}

func (a *Array) Layout() layout.Layout { return a.layout }

func (a *Array) Table() *devices.Table { return a.table }

func (a *Array) Devices() int { return a.layout.Devices() }

func (a *Array) Status(i int) raidsim.DeviceState { return a.table.Status(i) }

// Kill takes device i out of service. Killing a failed device is a no-op.
func (a *Array) Kill(i int) error {
	return a.table.Close(i)
}

// Repair reopens device i. Stale sectors are not resynchronized.
func (a *Array) Repair(i int) error {
	return a.table.Repair(i)
}

// Stale returns the on-device sectors of member i that missed a write while
// it was unreachable.
func (a *Array) Stale(i int) *roaring.Bitmap {
	a.mut.Lock()
	defer a.mut.Unlock()
	if i < 0 || i >= len(a.stale) {
		return roaring.New()
	}
	return a.stale[i].Clone()
}

func (a *Array) markStale(loc layout.Location) {
	s := loc.Sector()
	if s < 0 || s > int64(^uint32(0)) {
		clog.Warningf("not tracking stale sector %d on device %d", s, loc.Device)
		return
	}
	a.mut.Lock()
	defer a.mut.Unlock()
	b := a.stale[loc.Device]
	if b.CheckedAdd(uint32(s)) {
		promStaleSectors.WithLabelValues(strconv.Itoa(loc.Device)).Set(float64(b.GetCardinality()))
	}
}

func (a *Array) begin(sector int64) (layout.Location, error) {
	a.tr.Reset()
	if sector < 0 {
		return layout.Location{}, raidsim.ErrInvalidSector
	}
	return a.layout.Locate(sector), nil
}

func (a *Array) finish(op string, res *Result, err error) (Result, error) {
	res.Accesses = a.tr.Trace()
	result := "ok"
	if err != nil {
		result = "failed"
	}
	promOps.WithLabelValues(op, result).Inc()
	if res.State != Normal {
		promDegradedOps.WithLabelValues(res.State.String()).Inc()
	}
	clog.Debugf("%s %d: %s, %d accesses, err=%v", op, res.Sector, res.State, len(res.Accesses), err)
	return *res, err
}

func (a *Array) read(ctx context.Context, loc layout.Location) error {
	return a.tr.ReadSector(ctx, loc.Device, loc.Offset(), a.scratch)
}

func (a *Array) write(ctx context.Context, loc layout.Location) error {
	return a.tr.WriteSector(ctx, loc.Device, loc.Offset(), a.scratch)
}

// deviceFailure reports whether err came from a failed member rather than
// from the caller, such as a cancelled context.
func deviceFailure(err error) bool {
	return errors.Is(err, raidsim.ErrDeviceFailed)
}

// Read reads a logical sector. If its member cannot serve it, every other
// member of the stripe is read in ascending order; the first failure there
// fails the whole read. The returned error carries the last failed device.
func (a *Array) Read(ctx context.Context, sector int64) (Result, error) {
	loc, err := a.begin(sector)
	res := &Result{Sector: sector, Location: loc}
	if err != nil {
		return *res, err
	}

	err = a.read(ctx, loc)
	if err == nil || !deviceFailure(err) {
		return a.finish("read", res, err)
	}

	res.State = DegradedRead
	for _, b := range a.layout.BackupSet(loc) {
		if err = a.read(ctx, b); err != nil {
			break
		}
	}
	return a.finish("read", res, err)
}

// Write writes a logical sector and keeps the stripe's parity in step. While
// parity is down only the target is written. When the target cannot be
// written, the rest of the stripe is touched instead: parity is written and
// every other data member read.
func (a *Array) Write(ctx context.Context, sector int64) (Result, error) {
	loc, err := a.begin(sector)
	res := &Result{Sector: sector, Location: loc}
	if err != nil {
		return *res, err
	}
	parity := a.layout.Parity(loc)

	if a.table.Status(loc.Device) == raidsim.DeviceOpen {
		res.State, err = a.standardWrite(ctx, loc, parity)
		if err == nil || !deviceFailure(err) {
			return a.finish("write", res, err)
		}
	}

	res.State = DegradedWriteFailedTarget
	err = a.degradedWrite(ctx, loc)
	return a.finish("write", res, err)
}

func (a *Array) standardWrite(ctx context.Context, loc, parity layout.Location) (State, error) {
	if a.table.Status(parity.Device) != raidsim.DeviceOpen {
		if err := a.write(ctx, loc); err != nil {
			return DegradedWriteNormalTarget, err
		}
		a.markStale(parity)
		return DegradedWriteNormalTarget, nil
	}

	lower, higher := loc, parity
	if lower.Device > higher.Device {
		lower, higher = higher, lower
	}
	for _, l := range []layout.Location{lower, higher} {
		if err := a.read(ctx, l); err != nil {
			return Normal, err
		}
		if err := a.write(ctx, l); err != nil {
			return Normal, err
		}
	}
	return Normal, nil
}

func (a *Array) degradedWrite(ctx context.Context, loc layout.Location) error {
	for _, b := range a.layout.BackupSet(loc) {
		var err error
		if b.IsParity {
			err = a.write(ctx, b)
		} else {
			err = a.read(ctx, b)
		}
		if err != nil {
			return err
		}
	}
	a.markStale(loc)
	return nil
}
