// Package walt talks to a WALT-style latency timing box over a serial line,
// and provides a simulated box that speaks the same protocol.
//
// The host sends single-byte commands:
//
//	T  query device time        -> "T <micros>"
//	L  enable auto laser trigger
//	l  disable auto laser trigger
//	P  ping                     -> "P"
//
// The device sends newline-terminated lines: time replies, "G <micros> <0|1>"
// for every beam crossing while auto trigger is on (0 = into the beam), and
// "E <text>" on errors.
package walt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cbrunnkvist/draglat/latency"
)

// Command bytes.
const (
	CmdTimeNow        = 'T'
	CmdAutoLaserOn    = 'L'
	CmdAutoLaserOff   = 'l'
	CmdPing           = 'P'
	replyTime         = 'T'
	replyTrigger      = 'G'
	replyPong         = 'P'
	replyError        = 'E'
	defaultBaudRate   = 115200
	defaultSyncRounds = 10
)

// ErrUnknownCommand is returned for commands with no protocol mapping.
var ErrUnknownCommand = errors.New("walt: unknown command")

func commandByte(cmd latency.Command) (byte, error) {
	switch cmd {
	case latency.CommandAutoTriggerOn:
		return CmdAutoLaserOn, nil
	case latency.CommandAutoTriggerOff:
		return CmdAutoLaserOff, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnknownCommand, cmd)
	}
}

// Message is one parsed device line.
type Message struct {
	Kind   byte
	Micros int64
	Dir    latency.Direction
	Text   string
}

// ParseMessage parses a device line without its terminator.
func ParseMessage(line string) (Message, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Message{}, errors.New("walt: empty line")
	}
	fields := strings.Fields(line)
	switch kind := line[0]; kind {
	case replyTime:
		if len(fields) != 2 {
			return Message{}, fmt.Errorf("walt: malformed time reply %q", line)
		}
		us, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("walt: time reply: %w", err)
		}
		return Message{Kind: kind, Micros: us}, nil
	case replyTrigger:
		if len(fields) != 3 {
			return Message{}, fmt.Errorf("walt: malformed trigger %q", line)
		}
		us, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return Message{}, fmt.Errorf("walt: trigger time: %w", err)
		}
		switch fields[2] {
		case "0":
			return Message{Kind: kind, Micros: us, Dir: latency.Entry}, nil
		case "1":
			return Message{Kind: kind, Micros: us, Dir: latency.Exit}, nil
		}
		return Message{}, fmt.Errorf("walt: trigger value %q", fields[2])
	case replyPong:
		if line != "P" {
			return Message{}, fmt.Errorf("walt: malformed pong %q", line)
		}
		return Message{Kind: kind}, nil
	case replyError:
		return Message{Kind: kind, Text: strings.TrimSpace(line[1:])}, nil
	default:
		return Message{}, fmt.Errorf("walt: unrecognized line %q", line)
	}
}

func formatTime(us int64) string {
	return fmt.Sprintf("%c %d\n", replyTime, us)
}

func formatTrigger(us int64, dir latency.Direction) string {
	return fmt.Sprintf("%c %d %d\n", replyTrigger, us, int(dir))
}
