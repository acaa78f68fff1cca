// journal keeps a durable log of device incidents (failures, kills and
// repairs) in a bolt database, so the history of an array survives the
// process that ran it.
package journal

import (
	"encoding/binary"
	"encoding/json"
	"sync"
	"time"

	"github.com/coreos/pkg/capnslog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	bolt "go.etcd.io/bbolt"

	"github.com/coreos/raidsim"
	"github.com/coreos/raidsim/devices"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/raidsim", "journal")

var (
	promIncidents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raidsim_journal_incidents",
		Help: "Number of incidents written to the journal, by kind",
	}, []string{"kind"})
	promIncidentsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "raidsim_journal_incidents_failed",
		Help: "Number of incidents that could not be written",
	})
)

func init() {
	prometheus.MustRegister(promIncidents)
	prometheus.MustRegister(promIncidentsFailed)
}

var _ devices.Recorder = &Journal{}

var incidentsBucket = []byte("incidents")

// Entry is one recorded incident.
type Entry struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Device int       `json:"device"`
	Path   string    `json:"path"`
	Kind   string    `json:"kind"`
	Error  string    `json:"error,omitempty"`
}

// EntryFromEvent converts a device table event into a journal entry with a
// fresh ID.
func EntryFromEvent(e devices.Event) Entry {
	out := Entry{
		ID:     uuid.New().String(),
		Time:   e.Time,
		Device: e.Device,
		Path:   e.Path,
		Kind:   e.Kind.String(),
	}
	if e.Err != nil {
		out.Error = e.Err.Error()
	}
	return out
}

type Journal struct {
	mut sync.Mutex
	db  *bolt.DB
}

// Open opens, creating if needed, the journal at filename.
func Open(filename string) (*Journal, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(incidentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Record appends e to the journal. Errors are logged, never returned, so a
// full disk does not stop the array.
func (j *Journal) Record(e devices.Event) {
	if err := j.Append(EntryFromEvent(e)); err != nil {
		promIncidentsFailed.Inc()
		clog.Errorf("couldn't journal %s of device %d: %v", e.Kind, e.Device, err)
	}
}

// Append writes entry at the end of the journal.
func (j *Journal) Append(entry Entry) error {
	j.mut.Lock()
	defer j.mut.Unlock()
	if j.db == nil {
		return raidsim.ErrClosed
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	err = j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(incidentsBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return b.Put(key, data)
	})
	if err != nil {
		return err
	}
	promIncidents.WithLabelValues(entry.Kind).Inc()
	clog.Debugf("journaled %s of device %d as %s", entry.Kind, entry.Device, entry.ID)
	return nil
}

// List returns every entry in the order it was written.
func (j *Journal) List() ([]Entry, error) {
	j.mut.Lock()
	defer j.mut.Unlock()
	if j.db == nil {
		return nil, raidsim.ErrClosed
	}
	var out []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(incidentsBucket).ForEach(func(_, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Close flushes and closes the journal.
func (j *Journal) Close() error {
	j.mut.Lock()
	defer j.mut.Unlock()
	if j.db == nil {
		return raidsim.ErrClosed
	}
	err := j.db.Close()
	j.db = nil
	return err
}
