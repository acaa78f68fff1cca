// storage is the package which implements the device drivers that back the
// members of an array. Every driver hands out raidsim.Device handles that
// are positioned with Seek and move whole sectors with Read and Write.
package storage

import (
	"github.com/coreos/pkg/capnslog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coreos/raidsim"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/raidsim", "storage")

var (
	promDeviceOpens = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raidsim_storage_device_opens",
		Help: "Number of devices opened by each driver",
	}, []string{"driver"})
	promDeviceOpenFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raidsim_storage_device_open_failures",
		Help: "Number of device opens that failed, by driver",
	}, []string{"driver"})
	promDeviceCloses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raidsim_storage_device_closes",
		Help: "Number of device handles closed, by driver",
	}, []string{"driver"})
	promDeviceSyncs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "raidsim_storage_device_syncs",
		Help: "Number of times a device was synced to stable storage",
	}, []string{"driver"})
	promBytesPerSector = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "raidsim_storage_sector_bytes",
		Help: "Number of bytes per sector in the storage layer",
	})
)

func init() {
	prometheus.MustRegister(promDeviceOpens)
	prometheus.MustRegister(promDeviceOpenFailures)
	prometheus.MustRegister(promDeviceCloses)
	prometheus.MustRegister(promDeviceSyncs)
	prometheus.MustRegister(promBytesPerSector)
	promBytesPerSector.Set(raidsim.SectorSize)
}

func opened(driver string, err error) {
	if err != nil {
		promDeviceOpenFailures.WithLabelValues(driver).Inc()
		return
	}
	promDeviceOpens.WithLabelValues(driver).Inc()
}
