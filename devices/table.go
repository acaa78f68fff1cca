// devices owns the member devices of an array: one handle and one health
// flag per slot. A slot is Open while it holds a handle and Failed
// otherwise; only Repair moves a Failed slot back to Open.
package devices

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/coreos/pkg/capnslog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreos/raidsim"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/raidsim", "devices")

var promDeviceUp = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "raidsim_device_up",
	Help: "Whether each member device is open (1) or failed (0)",
}, []string{"device"})

func init() {
	prometheus.MustRegister(promDeviceUp)
}

// OpenError is returned when a device path cannot be opened.
type OpenError struct {
	Device int
	Path   string
	Err    error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("failed to open device %s index %d: %v", e.Path, e.Device, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

type slot struct {
	path string
	dev  raidsim.Device
}

// Info is a point-in-time view of one slot.
type Info struct {
	Index int                 `json:"index"`
	Path  string              `json:"path"`
	State raidsim.DeviceState `json:"state"`
}

// Table is the set of member devices of one array.
type Table struct {
	mut      sync.RWMutex
	slots    []slot
	cfg      raidsim.Config
	open     raidsim.OpenDeviceFunc
	recorder Recorder
	closed   bool
}

// New creates a table for paths, opened with the driver named in cfg. No
// device is opened until OpenAll.
func New(paths []string, cfg raidsim.Config) (*Table, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = raidsim.DefaultDriver
	}
	open, err := raidsim.DeviceOpener(driver)
	if err != nil {
		return nil, err
	}
	return NewWithOpener(paths, cfg, open)
}

// NewWithOpener is New with an explicit open function.
func NewWithOpener(paths []string, cfg raidsim.Config, open raidsim.OpenDeviceFunc) (*Table, error) {
	if len(paths) < raidsim.MinDevices {
		return nil, raidsim.ErrTooFewDevices
	}
	t := &Table{
		slots:    make([]slot, len(paths)),
		cfg:      cfg,
		open:     open,
		recorder: nopRecorder{},
	}
	for i, p := range paths {
		t.slots[i].path = p
		promDeviceUp.WithLabelValues(strconv.Itoa(i)).Set(0)
	}
	return t, nil
}

// SetRecorder installs r to receive device events.
func (t *Table) SetRecorder(r Recorder) {
	t.mut.Lock()
	defer t.mut.Unlock()
	if r == nil {
		r = nopRecorder{}
	}
	t.recorder = r
}

func (t *Table) record(e Event) {
	e.Time = time.Now()
	t.recorder.Record(e)
}

// OpenAll opens every slot. A device that fails to open is left Failed and
// reported in the returned slice; the table stays usable in degraded mode.
func (t *Table) OpenAll() []error {
	t.mut.Lock()
	defer t.mut.Unlock()
	var errs []error
	for i := range t.slots {
		dev, err := t.open(t.slots[i].path, t.cfg)
		if err != nil {
			oe := &OpenError{Device: i, Path: t.slots[i].path, Err: err}
			clog.Warningf("%v", oe)
			t.record(Event{Device: i, Path: t.slots[i].path, Kind: EventOpenFailed, Err: err})
			errs = append(errs, oe)
			continue
		}
		t.slots[i].dev = dev
		promDeviceUp.WithLabelValues(strconv.Itoa(i)).Set(1)
		clog.Infof("opened device %d: %s", i, t.slots[i].path)
		t.record(Event{Device: i, Path: t.slots[i].path, Kind: EventOpened})
	}
	return errs
}

// Len returns the number of slots.
func (t *Table) Len() int { return len(t.slots) }

// Valid reports whether i names a slot.
func (t *Table) Valid(i int) bool { return i >= 0 && i < len(t.slots) }

// Path returns the path of slot i.
func (t *Table) Path(i int) string {
	if !t.Valid(i) {
		return ""
	}
	return t.slots[i].path
}

// Status reports the health of slot i. Unknown slots are Failed.
func (t *Table) Status(i int) raidsim.DeviceState {
	t.mut.RLock()
	defer t.mut.RUnlock()
	if !t.Valid(i) || t.slots[i].dev == nil {
		return raidsim.DeviceFailed
	}
	return raidsim.DeviceOpen
}

// Handle returns the open handle of slot i for the duration of one I/O. The
// caller must not keep it past the call.
func (t *Table) Handle(i int) (raidsim.Device, bool) {
	t.mut.RLock()
	defer t.mut.RUnlock()
	if !t.Valid(i) || t.slots[i].dev == nil {
		return nil, false
	}
	return t.slots[i].dev, true
}

// Sync reports whether writes should be synced to stable storage.
func (t *Table) Sync() bool { return t.cfg.Sync }

// Close takes slot i out of service, closing its handle. Closing a Failed
// slot is a no-op.
func (t *Table) Close(i int) error {
	return t.takeDown(i, EventKilled, nil)
}

// Fail takes slot i out of service because an I/O against it failed.
func (t *Table) Fail(i int, cause error) error {
	return t.takeDown(i, EventFailed, cause)
}

func (t *Table) takeDown(i int, kind EventKind, cause error) error {
	if !t.Valid(i) {
		return raidsim.ErrInvalidDevice
	}
	t.mut.Lock()
	defer t.mut.Unlock()
	s := &t.slots[i]
	if s.dev == nil {
		return nil
	}
	if err := s.dev.Close(); err != nil {
		clog.Warningf("closing device %d (%s): %v", i, s.path, err)
	}
	s.dev = nil
	promDeviceUp.WithLabelValues(strconv.Itoa(i)).Set(0)
	if cause != nil {
		clog.Errorf("device %d (%s) failed: %v", i, s.path, cause)
	} else {
		clog.Noticef("device %d (%s) taken down", i, s.path)
	}
	t.record(Event{Device: i, Path: s.path, Kind: kind, Err: cause})
	return nil
}

// Repair reopens slot i. On success any previous handle is closed and the
// slot is Open with the new one. On failure the slot keeps its prior state
// and handle, and an *OpenError is returned.
func (t *Table) Repair(i int) error {
	if !t.Valid(i) {
		return raidsim.ErrInvalidDevice
	}
	t.mut.Lock()
	defer t.mut.Unlock()
	s := &t.slots[i]
	dev, err := t.open(s.path, t.cfg)
	if err != nil {
		oe := &OpenError{Device: i, Path: s.path, Err: err}
		clog.Warningf("repair: %v", oe)
		t.record(Event{Device: i, Path: s.path, Kind: EventRepairFailed, Err: err})
		return oe
	}
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			clog.Warningf("repair: closing old handle of device %d: %v", i, err)
		}
	}
	s.dev = dev
	promDeviceUp.WithLabelValues(strconv.Itoa(i)).Set(1)
	clog.Infof("repaired device %d: %s", i, s.path)
	t.record(Event{Device: i, Path: s.path, Kind: EventRepaired})
	return nil
}

// Snapshot returns the state of every slot.
func (t *Table) Snapshot() []Info {
	t.mut.RLock()
	defer t.mut.RUnlock()
	out := make([]Info, len(t.slots))
	for i, s := range t.slots {
		out[i] = Info{Index: i, Path: s.path, State: raidsim.DeviceFailed}
		if s.dev != nil {
			out[i].State = raidsim.DeviceOpen
		}
	}
	return out
}

// CloseAll closes every open slot at shutdown. Failed slots are skipped.
// The first close error is returned.
func (t *Table) CloseAll() error {
	t.mut.Lock()
	defer t.mut.Unlock()
	if t.closed {
		return raidsim.ErrClosed
	}
	t.closed = true
	var first error
	for i := range t.slots {
		s := &t.slots[i]
		if s.dev == nil {
			continue
		}
		if err := s.dev.Close(); err != nil && first == nil {
			first = err
		}
		s.dev = nil
		promDeviceUp.WithLabelValues(strconv.Itoa(i)).Set(0)
	}
	return first
}
