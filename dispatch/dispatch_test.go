package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreos/raidsim"
	"github.com/coreos/raidsim/devices"
	"github.com/coreos/raidsim/raid"
	"github.com/coreos/raidsim/storage"
)

type harness struct {
	paths []string
	table *devices.Table
	out   bytes.Buffer
	d     *Dispatcher
}

// newHarness creates temp devices of the given sizes, in sectors. A size of
// zero leaves the path missing.
func newHarness(t *testing.T, sizes ...int) *harness {
	h := &harness{}
	for i, n := range sizes {
		p := fmt.Sprintf("%s-dev%d", t.Name(), i)
		if n > 0 {
			storage.CreateTemp(p, uint64(n*raidsim.SectorSize))
		}
		h.paths = append(h.paths, p)
	}
	tbl, err := devices.New(h.paths, raidsim.Config{Driver: "temp"})
	require.NoError(t, err)
	h.table = tbl
	errs := tbl.OpenAll()
	t.Cleanup(func() {
		tbl.CloseAll()
		for _, p := range h.paths {
			storage.RemoveTemp(p)
		}
	})
	a, err := raid.New(tbl)
	require.NoError(t, err)
	h.d = New(a, &h.out)
	h.d.ReportOpenErrors(errs)
	return h
}

func (h *harness) run(t *testing.T, script ...string) []string {
	h.out.Reset()
	err := h.d.Run(context.Background(), strings.NewReader(strings.Join(script, "\n")+"\n"))
	require.NoError(t, err)
	out := strings.TrimSuffix(h.out.String(), "\n")
	if out == "" {
		return nil
	}
	return strings.Split(out, "\n")
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		cmd  Command
		err  string
	}{
		{"READ 0", Command{OpRead, 0}, ""},
		{"WRITE 17", Command{OpWrite, 17}, ""},
		{"  KILL\t2  trailing", Command{OpKill, 2}, ""},
		{"REPAIR 1", Command{OpRepair, 1}, ""},
		{"read 0", Command{}, "Invalid command: read"},
		{"READ", Command{}, "Missing parameter: READ"},
		{"READ abc", Command{}, "Invalid parameter: abc"},
		{"WRITE -1", Command{}, "Invalid parameter: -1"},
	}
	for _, tt := range tests {
		cmd, err := ParseCommand(tt.line)
		if tt.err != "" {
			if err == nil || err.Error() != tt.err {
				t.Errorf("%q: expected error %q, got %v", tt.line, tt.err, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error %v", tt.line, err)
			continue
		}
		if cmd != tt.cmd {
			t.Errorf("%q: expected %v, got %v", tt.line, tt.cmd, cmd)
		}
	}
	if _, err := ParseCommand("   "); err != ErrBlank {
		t.Fatalf("expected ErrBlank, got %v", err)
	}
}

func TestScenarios(t *testing.T) {
	h := newHarness(t, 16, 16, 16, 16)

	require.Equal(t, []string{
		"Operation on device 0, sector 0",
		"Operation on device 1, sector 0",
		"Operation on device 2, sector 0",
		"Operation on device 3, sector 0",
		"Operation on device 1, sector 0",
		"Operation on device 2, sector 0",
		"Operation on device 3, sector 0",
		"Operation on device 0, sector 0",
	}, h.run(t,
		"READ 0",
		"KILL 0",
		"READ 0",
		"WRITE 0",
		"REPAIR 0",
		"READ 0",
	))
}

func TestParityDownWrite(t *testing.T) {
	h := newHarness(t, 16, 16, 16, 16)
	require.Equal(t, []string{
		"Operation on device 0, sector 0",
	}, h.run(t, "KILL 3", "WRITE 0"))
}

func TestBadInput(t *testing.T) {
	h := newHarness(t, 16, 16, 16)
	require.Equal(t, []string{
		"Invalid command: FLY",
		"Invalid device index: 9",
		"Invalid device index: 3",
		"Invalid parameter: x",
		"Invalid parameter: -3",
		"Missing parameter: WRITE",
	}, h.run(t,
		"FLY 3",
		"",
		"KILL 9",
		"REPAIR 3",
		"READ x",
		"READ -3",
		"WRITE",
	))
}

func TestDoubleFailure(t *testing.T) {
	h := newHarness(t, 16, 16, 16, 16)
	require.Equal(t, []string{
		"Operation on bad device 1",
	}, h.run(t, "KILL 0", "KILL 1", "READ 0"))
}

func TestShortIO(t *testing.T) {
	h := newHarness(t, 16, 16, 16, 1)
	require.Equal(t, []string{
		"Operation on device 1, sector 1",
		"Operation on device 1, sector 1",
		fmt.Sprintf("Read operation failed on bad device %s (index 3) with error transferred 0 of 4096 bytes: EOF", h.paths[3]),
		"Operation on device 0, sector 1",
		"Operation on device 2, sector 1",
		"Operation on bad device 3",
	}, h.run(t, "WRITE 5"))
	require.Equal(t, raidsim.DeviceFailed, h.table.Status(3))
}

func TestOpenAndRepairFailures(t *testing.T) {
	h := newHarness(t, 16, 16, 0)
	require.Equal(t,
		fmt.Sprintf("Failed to open device %s index 2 with error open %s: file does not exist\n", h.paths[2], h.paths[2]),
		h.out.String())

	storage.RemoveTemp(h.paths[1])
	require.Equal(t, []string{
		fmt.Sprintf("Failed to open device %s index 1 with error open %s: file does not exist", h.paths[1], h.paths[1]),
		"Operation on device 1, sector 0",
	}, h.run(t, "REPAIR 1", "READ 4"))
}

func TestCancelledRun(t *testing.T) {
	h := newHarness(t, 16, 16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.d.Run(ctx, strings.NewReader("READ 0\n"))
	require.Equal(t, context.Canceled, err)
	require.Empty(t, h.out.String())
}

func TestLongLines(t *testing.T) {
	h := newHarness(t, 16, 16, 16, 16)
	require.Equal(t, []string{
		"Invalid command: NOPE",
		"Operation on device 0, sector 0",
		"Operation on device 1, sector 0",
	}, h.run(t,
		"NOPE "+strings.Repeat("x", 70000),
		"READ 0",
		"READ 4 "+strings.Repeat("y", 3*maxLine),
	))
}

func TestLastLineWithoutNewline(t *testing.T) {
	h := newHarness(t, 16, 16)
	err := h.d.Run(context.Background(), strings.NewReader("KILL 1\nREAD 0"))
	require.NoError(t, err)
	require.Equal(t, "Operation on device 0, sector 0\n", h.out.String())
}
