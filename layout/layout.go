// layout maps logical sectors of a RAID-5 style array onto physical
// locations on its member devices. Parity rotates across all members from
// stripe to stripe, starting at the last device. Everything here is a pure
// function of the member count.
package layout

import (
	"fmt"

	"github.com/coreos/raidsim"
)

// Location is one sector on one member device.
type Location struct {
	Device       int
	Stripe       int64
	PlaceInBlock int
	IsParity     bool
}

// Sector returns the sector index on the member device.
func (l Location) Sector() int64 {
	return l.Stripe*raidsim.SectorsPerBlock + int64(l.PlaceInBlock)
}

// Offset returns the byte offset of the sector on the member device.
func (l Location) Offset() int64 {
	return l.Sector() * raidsim.SectorSize
}

func (l Location) String() string {
	kind := "data"
	if l.IsParity {
		kind = "parity"
	}
	return fmt.Sprintf("dev: %d, stripe: %d, place: %d (%s)", l.Device, l.Stripe, l.PlaceInBlock, kind)
}

// Layout is the placement function for an array of a fixed number of
// devices.
type Layout struct {
	devices int
}

// New returns the layout for n devices.
func New(n int) (Layout, error) {
	if n < raidsim.MinDevices {
		return Layout{}, raidsim.ErrTooFewDevices
	}
	return Layout{devices: n}, nil
}

// MustNew is New for callers that have already validated n.
func MustNew(n int) Layout {
	l, err := New(n)
	if err != nil {
		panic(err)
	}
	return l
}

func (l Layout) Devices() int { return l.devices }

// ParityDevice returns the member holding parity for stripe.
func (l Layout) ParityDevice(stripe int64) int {
	return l.devices - 1 - int(stripe%int64(l.devices))
}

func (l Layout) stripe(sector int64) int64 {
	return (sector / int64(l.devices-1)) / raidsim.SectorsPerBlock
}

// Locate translates a non-negative logical sector to the data location
// holding it.
func (l Layout) Locate(sector int64) Location {
	stripe := l.stripe(sector)
	parity := l.ParityDevice(stripe)

	block := sector / raidsim.SectorsPerBlock
	slot := int(block % int64(l.devices-1))
	dev := slot
	// skip over the parity member
	if slot >= parity {
		dev++
	}

	return Location{
		Device:       dev,
		Stripe:       stripe,
		PlaceInBlock: int(sector % raidsim.SectorsPerBlock),
	}
}

// Parity returns the parity location covering loc.
func (l Layout) Parity(loc Location) Location {
	return Location{
		Device:       l.ParityDevice(loc.Stripe),
		Stripe:       loc.Stripe,
		PlaceInBlock: loc.PlaceInBlock,
		IsParity:     true,
	}
}

// BackupSet returns every other member's location at the same stripe and
// place, in ascending device order. These are the sectors needed to
// reconstruct loc, or to recompute parity without it.
func (l Layout) BackupSet(loc Location) []Location {
	parity := l.ParityDevice(loc.Stripe)
	out := make([]Location, 0, l.devices-1)
	for dev := 0; dev < l.devices; dev++ {
		if dev == loc.Device {
			continue
		}
		out = append(out, Location{
			Device:       dev,
			Stripe:       loc.Stripe,
			PlaceInBlock: loc.PlaceInBlock,
			IsParity:     dev == parity,
		})
	}
	return out
}

// Describe renders the placement of the first stripes, for debugging.
func (l Layout) Describe(stripes int) string {
	s := fmt.Sprintf("Layout: %d devices\nParity:", l.devices)
	for i := 0; i < stripes; i++ {
		s += fmt.Sprintf("\n\tstripe %d: dev %d", i, l.ParityDevice(int64(i)))
	}
	return s
}
