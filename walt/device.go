package walt

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cbrunnkvist/draglat/latency"
)

// Device is a simulated timing box serving the protocol on rw. Its clock runs
// from an arbitrary origin so the host has to sync against it.
type Device struct {
	rw     io.ReadWriter
	logger *slog.Logger

	epoch  time.Time
	origin int64

	wmu       sync.Mutex
	autoLaser atomic.Bool
	triggers  atomic.Int64
}

// NewDevice returns a device whose clock reads origin microseconds when it is
// created.
func NewDevice(rw io.ReadWriter, origin int64, logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	return &Device{
		rw:     rw,
		logger: logger,
		epoch:  time.Now(),
		origin: origin,
	}
}

// Micros reads the device clock.
func (d *Device) Micros() int64 {
	return d.origin + time.Since(d.epoch).Microseconds()
}

// AutoLaser reports whether crossings are currently being reported.
func (d *Device) AutoLaser() bool {
	return d.autoLaser.Load()
}

// Triggers returns how many crossings have been reported.
func (d *Device) Triggers() int64 {
	return d.triggers.Load()
}

// Serve answers host commands until rw fails. A closed line, including a
// hung-up pty, is not an error.
func (d *Device) Serve() error {
	buf := make([]byte, 64)
	for {
		n, err := d.rw.Read(buf)
		for _, b := range buf[:n] {
			if werr := d.handle(b); werr != nil {
				return werr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, syscall.EIO) {
				return nil
			}
			return err
		}
	}
}

func (d *Device) handle(b byte) error {
	switch b {
	case CmdTimeNow:
		return d.write(formatTime(d.Micros()))
	case CmdAutoLaserOn:
		d.autoLaser.Store(true)
		d.logger.Debug("device auto laser on")
	case CmdAutoLaserOff:
		d.autoLaser.Store(false)
		d.logger.Debug("device auto laser off")
	case CmdPing:
		return d.write(string(replyPong) + "\n")
	case '\r', '\n', ' ':
	default:
		return d.write(fmt.Sprintf("%c unknown command %q\n", replyError, b))
	}
	return nil
}

// Crossing reports a beam crossing at device time us. It is dropped unless
// the auto laser is on.
func (d *Device) Crossing(us int64, dir latency.Direction) error {
	if !d.autoLaser.Load() {
		return nil
	}
	if err := d.write(formatTrigger(us, dir)); err != nil {
		return err
	}
	d.triggers.Add(1)
	return nil
}

func (d *Device) write(s string) error {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	if _, err := io.WriteString(d.rw, s); err != nil {
		return fmt.Errorf("walt device: %w", err)
	}
	return nil
}
