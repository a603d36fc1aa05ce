package walt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/cbrunnkvist/draglat/latency"
)

// ErrClosed is returned once the device line has gone away.
var ErrClosed = errors.New("walt: connection closed")

// DefaultDriftTimeout bounds the extra round trip made by CheckDrift.
const DefaultDriftTimeout = time.Second

// Options tune a Transport. Zero values pick the defaults.
type Options struct {
	// SyncRounds is the number of time queries per Sync; the one with the
	// shortest round trip wins.
	SyncRounds   int
	DriftTimeout time.Duration
	Logger       *slog.Logger
}

var _ latency.Clock = (*Transport)(nil)

// Transport is a latency.Clock backed by a timing box on conn.
type Transport struct {
	conn   io.ReadWriteCloser
	logger *slog.Logger
	rounds int
	drift  time.Duration

	epoch  time.Time
	offset atomic.Int64
	synced atomic.Bool

	wmu sync.Mutex
	qmu sync.Mutex // one time query in flight

	hmu       sync.Mutex
	handler   func(latency.TriggerEvent)
	listening bool

	times chan int64
	pongs chan struct{}
	done  chan struct{}
	err   error
}

// Dial opens the serial device at path and starts a Transport on it.
func Dial(path string, baud int, opts Options) (*Transport, error) {
	if baud <= 0 {
		baud = defaultBaudRate
	}
	port, err := serial.Open(path, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("walt: open %s: %w", path, err)
	}
	return NewTransport(port, opts), nil
}

// NewTransport starts reading device lines from conn. The Transport owns conn
// and closes it in Close.
func NewTransport(conn io.ReadWriteCloser, opts Options) *Transport {
	if opts.SyncRounds <= 0 {
		opts.SyncRounds = defaultSyncRounds
	}
	if opts.DriftTimeout <= 0 {
		opts.DriftTimeout = DefaultDriftTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	t := &Transport{
		conn:   conn,
		logger: opts.Logger,
		rounds: opts.SyncRounds,
		drift:  opts.DriftTimeout,
		epoch:  time.Now(),
		times:  make(chan int64, 1),
		pongs:  make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// Close closes the line and waits for the reader to exit.
func (t *Transport) Close() error {
	err := t.conn.Close()
	<-t.done
	return err
}

func (t *Transport) hostMicros() int64 {
	return time.Since(t.epoch).Microseconds()
}

// Micros returns the host's estimate of device time.
func (t *Transport) Micros() int64 {
	return t.hostMicros() + t.offset.Load()
}

// Synced reports whether a Sync has succeeded.
func (t *Transport) Synced() bool {
	return t.synced.Load()
}

// Sync runs the configured number of time queries and keeps the offset from
// the one with the smallest round trip.
func (t *Transport) Sync(ctx context.Context) error {
	t.qmu.Lock()
	defer t.qmu.Unlock()

	bestRTT := int64(-1)
	var bestOffset int64
	for i := 0; i < t.rounds; i++ {
		send, device, recv, err := t.queryTime(ctx)
		if err != nil {
			return fmt.Errorf("walt: sync round %d: %w", i+1, err)
		}
		rtt := recv - send
		if bestRTT < 0 || rtt < bestRTT {
			bestRTT = rtt
			bestOffset = device - (send+recv)/2
		}
	}
	t.offset.Store(bestOffset)
	t.synced.Store(true)
	t.logger.Debug("clock synced", "offset_us", bestOffset, "min_rtt_us", bestRTT, "rounds", t.rounds)
	return nil
}

// CheckDrift makes one more time query and logs how far the device clock has
// moved from the synced estimate.
func (t *Transport) CheckDrift() {
	if !t.Synced() {
		return
	}
	t.qmu.Lock()
	defer t.qmu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), t.drift)
	defer cancel()
	send, device, recv, err := t.queryTime(ctx)
	if err != nil {
		t.logger.Warn("clock drift check failed", "error", err)
		return
	}
	predicted := (send+recv)/2 + t.offset.Load()
	t.logger.Info("clock drift", "drift_us", device-predicted, "rtt_us", recv-send)
}

// queryTime sends one time query. Callers hold qmu.
func (t *Transport) queryTime(ctx context.Context) (send, device, recv int64, err error) {
	// Drop a reply left over from an abandoned query.
	select {
	case <-t.times:
	default:
	}
	send = t.hostMicros()
	if err = t.writeByte(CmdTimeNow); err != nil {
		return 0, 0, 0, err
	}
	select {
	case device = <-t.times:
		recv = t.hostMicros()
		return send, device, recv, nil
	case <-t.done:
		return 0, 0, 0, t.closedErr()
	case <-ctx.Done():
		return 0, 0, 0, ctx.Err()
	}
}

// Ping checks that the device answers.
func (t *Transport) Ping(ctx context.Context) error {
	select {
	case <-t.pongs:
	default:
	}
	if err := t.writeByte(CmdPing); err != nil {
		return err
	}
	select {
	case <-t.pongs:
		return nil
	case <-t.done:
		return t.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Command sends a device command.
func (t *Transport) Command(cmd latency.Command) error {
	b, err := commandByte(cmd)
	if err != nil {
		return err
	}
	return t.writeByte(b)
}

func (t *Transport) writeByte(b byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	select {
	case <-t.done:
		return t.closedErr()
	default:
	}
	if _, err := t.conn.Write([]byte{b}); err != nil {
		return fmt.Errorf("walt: write %q: %w", b, err)
	}
	return nil
}

// StartListening begins delivering trigger lines to the handler.
func (t *Transport) StartListening() error {
	select {
	case <-t.done:
		return t.closedErr()
	default:
	}
	t.hmu.Lock()
	t.listening = true
	t.hmu.Unlock()
	return nil
}

func (t *Transport) StopListening() {
	t.hmu.Lock()
	t.listening = false
	t.hmu.Unlock()
}

func (t *Transport) SetTriggerHandler(h func(latency.TriggerEvent)) {
	t.hmu.Lock()
	t.handler = h
	t.hmu.Unlock()
}

func (t *Transport) ClearTriggerHandler() {
	t.SetTriggerHandler(nil)
}

func (t *Transport) closedErr() error {
	if t.err != nil {
		return fmt.Errorf("%w: %w", ErrClosed, t.err)
	}
	return ErrClosed
}

func (t *Transport) readLoop() {
	defer close(t.done)

	sc := bufio.NewScanner(t.conn)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		msg, err := ParseMessage(line)
		if err != nil {
			t.logger.Debug("ignoring device line", "line", line, "error", err)
			continue
		}
		switch msg.Kind {
		case replyTime:
			select {
			case t.times <- msg.Micros:
			default:
				t.logger.Debug("unsolicited time reply", "micros", msg.Micros)
			}
		case replyPong:
			select {
			case t.pongs <- struct{}{}:
			default:
			}
		case replyTrigger:
			t.deliver(latency.TriggerEvent{Micros: msg.Micros, Dir: msg.Dir})
		case replyError:
			t.logger.Warn("device error", "text", msg.Text)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		t.err = err
	}
}

func (t *Transport) deliver(ev latency.TriggerEvent) {
	t.hmu.Lock()
	h, on := t.handler, t.listening
	t.hmu.Unlock()
	if !on || h == nil {
		return
	}
	h(ev)
}
