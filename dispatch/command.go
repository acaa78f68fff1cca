// dispatch runs the line protocol of the array: one `OPNAME PARAM` command
// per line, executed to completion before the next is read.
package dispatch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Op is a command of the line protocol.
type Op int

const (
	OpRead Op = iota
	OpWrite
	OpRepair
	OpKill
)

var opNames = map[string]Op{
	"READ":   OpRead,
	"WRITE":  OpWrite,
	"REPAIR": OpRepair,
	"KILL":   OpKill,
}

func (o Op) String() string {
	for k, v := range opNames {
		if v == o {
			return k
		}
	}
	return "UNKNOWN"
}

// Command is one parsed line.
type Command struct {
	Op Op
	// Param is a logical sector for READ and WRITE, and a device index for
	// REPAIR and KILL.
	Param int64
}

func (c Command) String() string {
	return fmt.Sprintf("%s %d", c.Op, c.Param)
}

// ErrBlank is returned by ParseCommand for lines with nothing on them.
var ErrBlank = errors.New("dispatch: blank line")

// InvalidCommandError names an unknown command.
type InvalidCommandError struct {
	Name string
}

func (e *InvalidCommandError) Error() string {
	return "Invalid command: " + e.Name
}

// InvalidParamError is returned when a command's parameter is missing, not
// a number, or negative.
type InvalidParamError struct {
	Op    Op
	Param string
}

func (e *InvalidParamError) Error() string {
	if e.Param == "" {
		return "Missing parameter: " + e.Op.String()
	}
	return "Invalid parameter: " + e.Param
}

// ParseCommand parses a single `OPNAME PARAM` line. Fields after the
// parameter are ignored.
func ParseCommand(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrBlank
	}
	op, ok := opNames[fields[0]]
	if !ok {
		return Command{}, &InvalidCommandError{Name: fields[0]}
	}
	if len(fields) < 2 {
		return Command{}, &InvalidParamError{Op: op}
	}
	param, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || param < 0 {
		return Command{}, &InvalidParamError{Op: op, Param: fields[1]}
	}
	return Command{Op: op, Param: param}, nil
}
