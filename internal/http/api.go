package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/coreos/pkg/capnslog"
	"github.com/julienschmidt/httprouter"

	"github.com/coreos/raidsim/devices"
	"github.com/coreos/raidsim/raid"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/raidsim", "http")

// DeviceStatus is the JSON view of one member device.
type DeviceStatus struct {
	devices.Info
	StaleSectors uint64 `json:"stale_sectors"`
}

type apiV0 struct {
	array *raid.Array
}

func (a *apiV0) setupRoutes(r *httprouter.Router) {
	r.GET("/v0/devices", a.getDevices)
	r.GET("/v0/devices/:index", a.getDevice)
}

func (a *apiV0) status(info devices.Info) DeviceStatus {
	return DeviceStatus{
		Info:         info,
		StaleSectors: a.array.Stale(info.Index).GetCardinality(),
	}
}

func (a *apiV0) getDevices(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var out []DeviceStatus
	for _, info := range a.array.Table().Snapshot() {
		out = append(out, a.status(info))
	}
	writeJSON(w, out)
}

func (a *apiV0) getDevice(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	i, err := strconv.Atoi(ps.ByName("index"))
	snap := a.array.Table().Snapshot()
	if err != nil || i < 0 || i >= len(snap) {
		http.Error(w, "no such device", http.StatusNotFound)
		return
	}
	writeJSON(w, a.status(snap[i]))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		clog.Errorf("couldn't write response: %v", err)
	}
}
