package latency

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Section markers of the raw capture dump.
const (
	laserBegin = "#####> LASER EVENTS #####"
	laserEnd   = "#####< END OF LASER EVENTS #####"
	touchBegin = "=====> TOUCH EVENTS ====="
	touchEnd   = "=====< END OF TOUCH EVENTS ====="
)

// WriteRawData dumps the captured streams to sink, one event per line:
// "<micros> <direction>" for laser events and "<micros> <x> <y>" for touches.
func WriteRawData(sink LogSink, touches []TouchSample, triggers []TriggerEvent) {
	sink.Log(laserBegin)
	for _, ev := range triggers {
		sink.Log(fmt.Sprintf("%d %d", ev.Micros, int(ev.Dir)))
	}
	sink.Log(laserEnd)

	sink.Log(touchBegin)
	for _, s := range touches {
		sink.Log(fmt.Sprintf("%d %.3f %.3f", s.Micros, s.Pos.X, s.Pos.Y))
	}
	sink.Log(touchEnd)
}

// ParseRawData reads a dump written by WriteRawData. Lines outside the two
// sections are ignored, so a whole session log can be fed in. Lines may be
// bare, slog text records (msg=...) or slog JSON records.
func ParseRawData(r io.Reader) ([]TouchSample, []TriggerEvent, error) {
	const (
		outside = iota
		inLaser
		inTouch
	)

	var (
		touches  []TouchSample
		triggers []TriggerEvent
		section  = outside
		lineNo   int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		lineNo++
		line := messageOf(sc.Text())
		switch line {
		case laserBegin:
			section = inLaser
			continue
		case touchBegin:
			section = inTouch
			continue
		case laserEnd, touchEnd:
			section = outside
			continue
		case "":
			continue
		}

		fields := strings.Fields(line)
		switch section {
		case inLaser:
			ev, err := parseTrigger(fields)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			triggers = append(triggers, ev)
		case inTouch:
			s, err := parseTouch(fields)
			if err != nil {
				return nil, nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			touches = append(touches, s)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read raw data: %w", err)
	}
	return touches, triggers, nil
}

func parseTrigger(fields []string) (TriggerEvent, error) {
	if len(fields) != 2 {
		return TriggerEvent{}, fmt.Errorf("laser event: want 2 fields, got %d", len(fields))
	}
	us, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return TriggerEvent{}, fmt.Errorf("laser event time: %w", err)
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil || (v != int(Entry) && v != int(Exit)) {
		return TriggerEvent{}, fmt.Errorf("laser event direction %q", fields[1])
	}
	return TriggerEvent{Micros: us, Dir: Direction(v)}, nil
}

func parseTouch(fields []string) (TouchSample, error) {
	if len(fields) != 3 {
		return TouchSample{}, fmt.Errorf("touch event: want 3 fields, got %d", len(fields))
	}
	us, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return TouchSample{}, fmt.Errorf("touch event time: %w", err)
	}
	x, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return TouchSample{}, fmt.Errorf("touch event x: %w", err)
	}
	y, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return TouchSample{}, fmt.Errorf("touch event y: %w", err)
	}
	return TouchSample{Micros: us, Pos: Point{X: x, Y: y}}, nil
}

// messageOf extracts the logged text from a line that may be a structured
// log record.
func messageOf(line string) string {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "{") {
		var rec struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal([]byte(line), &rec); err == nil {
			return strings.TrimSpace(rec.Msg)
		}
		return line
	}
	i := strings.Index(line, "msg=")
	if i < 0 {
		return line
	}
	rest := line[i+len("msg="):]
	if strings.HasPrefix(rest, `"`) {
		if msg, err := strconv.QuotedPrefix(rest); err == nil {
			if unq, err := strconv.Unquote(msg); err == nil {
				return strings.TrimSpace(unq)
			}
		}
		return rest
	}
	if j := strings.IndexByte(rest, ' '); j >= 0 {
		rest = rest[:j]
	}
	return rest
}
