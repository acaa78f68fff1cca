package dispatch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/coreos/pkg/capnslog"

	"github.com/coreos/raidsim"
	"github.com/coreos/raidsim/devices"
	"github.com/coreos/raidsim/raid"
	"github.com/coreos/raidsim/transport"
)

var clog = capnslog.NewPackageLogger("github.com/coreos/raidsim", "dispatch")

// Dispatcher executes commands against an array and writes the protocol
// output for each of them.
type Dispatcher struct {
	array *raid.Array
	out   io.Writer
}

func New(array *raid.Array, out io.Writer) *Dispatcher {
	return &Dispatcher{array: array, out: out}
}

func (d *Dispatcher) printf(format string, args ...interface{}) {
	fmt.Fprintf(d.out, format+"\n", args...)
}

// ReportOpenErrors prints the devices that could not be opened at startup.
func (d *Dispatcher) ReportOpenErrors(errs []error) {
	for _, err := range errs {
		d.reportOpenError(err)
	}
}

func (d *Dispatcher) reportOpenError(err error) {
	var oe *devices.OpenError
	if errors.As(err, &oe) {
		d.printf("Failed to open device %s index %d with error %v", oe.Path, oe.Device, oe.Err)
		return
	}
	d.printf("%v", err)
}

// maxLine bounds the part of a line that is parsed. The rest of a longer
// line is read and discarded.
const maxLine = 1024

// readLine returns the next line of r without its line ending, truncated to
// maxLine bytes.
func readLine(r *bufio.Reader) (string, error) {
	var line []byte
	for {
		chunk, isPrefix, err := r.ReadLine()
		if err != nil {
			if len(line) > 0 {
				return string(line), nil
			}
			return "", err
		}
		if room := maxLine - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}
		if !isPrefix {
			return string(line), nil
		}
	}
}

// Run reads commands from in until it is exhausted or ctx is done. Bad
// lines and failed operations are reported and skipped; only a read error
// or cancellation stops the loop.
func (d *Dispatcher) Run(ctx context.Context, in io.Reader) error {
	r := bufio.NewReader(in)
	for {
		line, err := readLine(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := ParseCommand(line)
		switch {
		case err == ErrBlank:
			continue
		case err != nil:
			d.printf("%v", err)
			continue
		}
		if err := d.Exec(ctx, cmd); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Exec runs a single command and prints its output. The returned error is
// the outcome of the operation, which has already been reported.
func (d *Dispatcher) Exec(ctx context.Context, cmd Command) error {
	clog.Debugf("exec %v", cmd)
	switch cmd.Op {
	case OpRead:
		return d.report(d.array.Read(ctx, cmd.Param))
	case OpWrite:
		return d.report(d.array.Write(ctx, cmd.Param))
	case OpKill:
		err := d.array.Kill(int(cmd.Param))
		if err == raidsim.ErrInvalidDevice {
			d.printf("Invalid device index: %d", cmd.Param)
		}
		return err
	case OpRepair:
		err := d.array.Repair(int(cmd.Param))
		switch {
		case err == raidsim.ErrInvalidDevice:
			d.printf("Invalid device index: %d", cmd.Param)
		case err != nil:
			d.reportOpenError(err)
		}
		return err
	}
	return fmt.Errorf("dispatch: unhandled op %d", cmd.Op)
}

func (d *Dispatcher) report(res raid.Result, err error) error {
	for _, a := range res.Accesses {
		d.reportAccess(a)
	}
	if err == nil {
		return nil
	}
	if dev, ok := raidsim.FailedDevice(err); ok {
		d.printf("Operation on bad device %d", dev)
		return err
	}
	if err == raidsim.ErrInvalidSector {
		d.printf("Invalid parameter: %d", res.Sector)
		return err
	}
	clog.Warningf("sector %d: %v", res.Sector, err)
	return err
}

func (d *Dispatcher) reportAccess(a transport.Access) {
	if a.Err == nil {
		d.printf("Operation on device %d, sector %d", a.Device, a.Sector)
		return
	}
	var de *raidsim.DeviceError
	if !errors.As(a.Err, &de) {
		return
	}
	switch de.Kind {
	case raidsim.SeekMismatch:
		d.printf("Seek operation failed on bad device %d with error %v", a.Device, de.Err)
	case raidsim.ShortIO:
		d.printf("%s operation failed on bad device %s (index %d) with error %v",
			a.Op, d.array.Table().Path(a.Device), a.Device, de.Err)
	}
}
