// Package raidsim is a RAID-5 style address translation and fault tolerant
// I/O engine over a fixed set of backing block devices. Logical sectors are
// striped across the devices with rotating parity, device failures are
// detected by the I/O that hits them, and reads and writes fall back to
// degraded paths while a member is out of service.
package raidsim

import "github.com/coreos/pkg/capnslog"

// Version is set by build scripts, do not touch.
var Version string

var clog = capnslog.NewPackageLogger("github.com/coreos/raidsim", "raidsim")
