// Package bitbang drives WS281x strips from a Linux host, either by
// toggling a periph.io GPIO line with the core encoder or through an SPI
// port.
package bitbang

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"gopixel/core"
)

// NanoClockHz is the rate NanoClock counts at.
const NanoClockHz = 1000000000

// NanoClock is a core.CycleClock that counts nanoseconds of the monotonic
// clock. It wraps about every 4.3 seconds.
type NanoClock struct {
	base time.Time
}

func NewNanoClock() *NanoClock {
	return &NanoClock{base: time.Now()}
}

func (c *NanoClock) Now() uint32 {
	return uint32(time.Since(c.base))
}

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph host drivers once per process.
func Init() error {
	initOnce.Do(func() {
		_, initErr = host.Init()
	})
	return initErr
}

// Line is a periph output pin seen as a core.DigitalOutput. High and Low
// cannot return errors, so the first failure is kept for Err.
type Line struct {
	pin gpio.PinOut
	err error
}

// NewLine wraps an already resolved pin.
func NewLine(pin gpio.PinOut) *Line {
	return &Line{pin: pin}
}

// OpenLine resolves name ("GPIO18", "18", a header alias) and drives it low.
func OpenLine(name string) (*Line, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no gpio named %q", name)
	}
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("gpio %s: %w", name, err)
	}
	return NewLine(p), nil
}

func (l *Line) High() { l.out(gpio.High) }
func (l *Line) Low()  { l.out(gpio.Low) }

func (l *Line) out(level gpio.Level) {
	if err := l.pin.Out(level); err != nil && l.err == nil {
		l.err = err
	}
}

// Err returns the first error seen while toggling the line.
func (l *Line) Err() error {
	return l.err
}

func (l *Line) String() string {
	return l.pin.String()
}

// Driver is a core.GPIODriver over periph lines, mapping pin n to "GPIOn".
type Driver struct {
	mu    sync.Mutex
	open  func(name string) (*Line, error)
	lines map[core.GPIOPin]*Line
}

// NewDriver returns a Driver that opens pins with OpenLine.
func NewDriver() *Driver {
	return &Driver{open: OpenLine, lines: make(map[core.GPIOPin]*Line)}
}

func (d *Driver) ConfigureOutput(pin core.GPIOPin) error {
	_, err := d.line(pin)
	return err
}

func (d *Driver) SetPin(pin core.GPIOPin, value bool) error {
	l, err := d.line(pin)
	if err != nil {
		return err
	}
	if value {
		l.High()
	} else {
		l.Low()
	}
	return l.Err()
}

// Output implements core.OutputProvider.
func (d *Driver) Output(pin core.GPIOPin) (core.DigitalOutput, error) {
	l, err := d.line(pin)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (d *Driver) line(pin core.GPIOPin) (*Line, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if l, ok := d.lines[pin]; ok {
		return l, nil
	}
	l, err := d.open("GPIO" + strconv.Itoa(int(pin)))
	if err != nil {
		return nil, err
	}
	d.lines[pin] = l
	return l, nil
}

// Install registers a periph Driver and a NanoClock with core so that
// core.WriteSinglePin and core.WriteDualPins work on this host.
func Install() *Driver {
	d := NewDriver()
	core.SetGPIODriver(d)
	core.SetCycleClock(NewNanoClock(), NanoClockHz)
	return d
}

// NewWriter returns a core.Writer timed by a fresh NanoClock.
func NewWriter() (*core.Writer, error) {
	return core.NewWriter(NewNanoClock(), NanoClockHz)
}
