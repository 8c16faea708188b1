package mcu

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopixel/core"
	"gopixel/protocol"
)

// countingPin counts rising edges.
type countingPin struct {
	rises atomic.Int32
}

func (p *countingPin) High() { p.rises.Add(1) }
func (p *countingPin) Low()  {}

type fakeGPIO struct {
	mu   sync.Mutex
	pins map[core.GPIOPin]*countingPin
}

func (g *fakeGPIO) ConfigureOutput(pin core.GPIOPin) error {
	if pin >= 8 {
		return errors.New("invalid pin")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.pins[pin]; !ok {
		g.pins[pin] = &countingPin{}
	}
	return nil
}

func (g *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error {
	return g.ConfigureOutput(pin)
}

func (g *fakeGPIO) Output(pin core.GPIOPin) (core.DigitalOutput, error) {
	if err := g.ConfigureOutput(pin); err != nil {
		return nil, err
	}
	return g.pin(pin), nil
}

func (g *fakeGPIO) pin(pin core.GPIOPin) *countingPin {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pins[pin]
}

// tickClock advances by one cycle on every read.
type tickClock struct {
	now atomic.Uint32
}

func (c *tickClock) Now() uint32 { return c.now.Add(1) }

var registerOnce sync.Once

// startFirmware runs the firmware command layer on the far end of a pipe
// and returns a connected MCU.
func startFirmware(t *testing.T) (*MCU, *fakeGPIO) {
	t.Helper()
	registerOnce.Do(func() {
		core.InitCoreCommands()
		core.InitWS281xCommands()
		core.RegisterEnumeration("pin", []string{"gpio0", "gpio1", "gpio2", "gpio3", "gpio4", "gpio5", "gpio6", "gpio7"})
		core.RegisterConstant("CLOCK_FREQ", 48000000)
	})
	gpio := &fakeGPIO{pins: make(map[core.GPIOPin]*countingPin)}
	core.SetGPIODriver(gpio)
	core.SetCycleClock(&tickClock{}, 48000000)
	core.ResetStrips()
	core.ResetFirmwareState()

	hostConn, mcuConn := net.Pipe()
	out := protocol.NewScratchOutput()
	tr := protocol.NewTransport(out, core.DispatchCommand)
	core.SetGlobalTransport(tr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var pending []byte
		buf := make([]byte, 256)
		for {
			n, err := mcuConn.Read(buf)
			if err != nil {
				return
			}
			pending = append(pending, buf[:n]...)
			in := protocol.NewSliceInputBuffer(pending)
			tr.Receive(in)
			pending = append(pending[:0], in.Data()...)
			if res := out.Result(); len(res) > 0 {
				if _, err := mcuConn.Write(append([]byte(nil), res...)); err != nil {
					return
				}
				out.Reset()
			}
		}
	}()

	m := New(hostConn, zerolog.Nop())
	t.Cleanup(func() {
		_ = m.Close()
		_ = mcuConn.Close()
		<-done
		core.SetGlobalTransport(nil)
		core.ResetStrips()
		core.ResetFirmwareState()
	})
	require.NoError(t, m.RetrieveDictionary())
	return m, gpio
}

func TestRetrieveDictionary(t *testing.T) {
	m, _ := startFirmware(t)
	d := m.Dictionary()
	require.NotNil(t, d)
	assert.Equal(t, core.Version, d.Version)
	assert.Equal(t, d.Version, mustParse(t, m.RawDictionary()).Version)

	id, ok := d.Command("identify")
	require.True(t, ok)
	assert.Equal(t, uint16(1), id.ID)
	assert.Equal(t, "offset=%u count=%c", id.Format)
	resp, ok := d.Response("ws281x_result")
	require.True(t, ok)
	assert.Equal(t, "oid=%c success=%c", resp.Format)

	limit, err := d.Constant("WS281X_MAX_BYTES")
	require.NoError(t, err)
	assert.Equal(t, uint32(core.MaxStripBytes), limit)
	freq, err := d.Constant("CLOCK_FREQ")
	require.NoError(t, err)
	assert.Equal(t, uint32(48000000), freq)
}

func mustParse(t *testing.T, raw []byte) *Dictionary {
	t.Helper()
	d, err := ParseDictionary(raw)
	require.NoError(t, err)
	return d
}

func TestWriteStrip(t *testing.T) {
	m, gpio := startFirmware(t)

	require.NoError(t, m.ConfigureStrip(3, "gpio5", 60, core.VariantWS2812, core.OrderRGB))
	frame := make([]byte, 60)
	for i := range frame {
		frame[i] = byte(i)
	}
	require.NoError(t, m.WriteStrip(3, frame))

	s, ok := core.GetStrip(3)
	require.True(t, ok)
	assert.Equal(t, frame, s.Data())
	assert.Equal(t, core.OrderRGB, s.Order)
	assert.Equal(t, int32(60*8), gpio.pin(5).rises.Load())
}

func TestWriteDualStrip(t *testing.T) {
	m, gpio := startFirmware(t)

	require.NoError(t, m.ConfigureDualStrip(1, "gpio2", "3", 6))
	require.NoError(t, m.WriteStrip(1, []byte{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, int32(24), gpio.pin(2).rises.Load())
	assert.Equal(t, int32(24), gpio.pin(3).rises.Load())

	assert.ErrorIs(t, m.ConfigureDualStrip(2, "gpio2", "gpio3", 5), core.ErrUnevenChannels)
}

func TestWriteDualStripPartialPixels(t *testing.T) {
	m, gpio := startFirmware(t)

	require.NoError(t, m.ConfigureDualStrip(0, "gpio2", "gpio3", 4))
	require.NoError(t, m.WriteStrip(0, []byte{0x11, 0x22, 0x33, 0x44}))

	s, ok := core.GetStrip(0)
	require.True(t, ok)
	assert.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, s.Data())
	assert.Equal(t, int32(16), gpio.pin(2).rises.Load())
	assert.Equal(t, int32(16), gpio.pin(3).rises.Load())
}

func TestRejectedConfigReported(t *testing.T) {
	m, _ := startFirmware(t)

	// The dictionary accepts numeric pins; the firmware's driver refuses pin 9.
	assert.ErrorIs(t, m.ConfigureStrip(0, "9", 3, core.VariantWS2812, core.OrderGRB), ErrConfigRejected)
	st, err := m.Status()
	require.NoError(t, err)
	assert.True(t, st.Shutdown)

	require.NoError(t, m.Reset())
	require.NoError(t, m.ConfigureStrip(0, "gpio1", 3, core.VariantWS2812, core.OrderGRB))
	assert.ErrorIs(t, m.ConfigureStrip(0, "gpio2", 3, core.VariantWS2812, core.OrderGRB), ErrConfigRejected)

	require.NoError(t, m.Reset())
	assert.ErrorIs(t, m.ConfigureDualStrip(1, "gpio2", "12", 6), ErrConfigRejected)
}

func TestConfigureStripValidation(t *testing.T) {
	m, _ := startFirmware(t)

	assert.Error(t, m.ConfigureStrip(0, "gpio99", 3, core.VariantWS2812, core.OrderGRB))
	assert.Error(t, m.ConfigureStrip(0, "gpio1", 0, core.VariantWS2812, core.OrderGRB))
	assert.Error(t, m.ConfigureStrip(0, "gpio1", core.MaxStripBytes+3, core.VariantWS2812, core.OrderGRB))
	assert.Error(t, m.ConfigureStrip(0, "gpio1", 3, core.VariantDual, core.OrderGRB))
}

func TestSendUnknownStrip(t *testing.T) {
	m, _ := startFirmware(t)
	assert.ErrorIs(t, m.SendStrip(9), ErrSendFailed)
}

func TestEmergencyStopAndReset(t *testing.T) {
	m, _ := startFirmware(t)
	require.NoError(t, m.ConfigureStrip(0, "gpio1", 3, core.VariantWS2811, core.OrderGRB))

	require.NoError(t, m.EmergencyStop())
	st, err := m.Status()
	require.NoError(t, err)
	assert.True(t, st.Shutdown)
	assert.ErrorIs(t, m.WriteStrip(0, []byte{1, 2, 3}), ErrSendFailed)

	require.NoError(t, m.Reset())
	st, err = m.Status()
	require.NoError(t, err)
	assert.False(t, st.Shutdown)
	assert.False(t, st.Configured)

	// The strip is gone after the reset.
	assert.ErrorIs(t, m.SendStrip(0), ErrSendFailed)
}

func TestClockAndUptime(t *testing.T) {
	m, _ := startFirmware(t)
	c1, err := m.Clock()
	require.NoError(t, err)
	c2, err := m.Clock()
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)

	up, err := m.Uptime()
	require.NoError(t, err)
	assert.NotZero(t, up)
}

func TestUnknownCommand(t *testing.T) {
	m, _ := startFirmware(t)
	assert.Error(t, m.SendCommand("queue_step", 1))
}

func TestDictionaryEnumAndConstant(t *testing.T) {
	d := mustParse(t, []byte(`{
		"version": "v",
		"config": {"WS281X_MAX_BYTES": "1536", "MCU": "rp2350"},
		"commands": {"config_ws281x oid=%c pin=%u": 2},
		"responses": {"identify_response offset=%u data=%*s": 0},
		"enumerations": {"pin": {"gpio0": 0, "gpio18": 18}}
	}`))

	v, err := d.Enum("pin", "gpio18")
	require.NoError(t, err)
	assert.Equal(t, uint32(18), v)
	v, err = d.Enum("pin", "7")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)
	_, err = d.Enum("pin", "PA3")
	assert.Error(t, err)

	_, err = d.Constant("MCU")
	assert.Error(t, err)
	_, err = d.Constant("CLOCK_FREQ")
	assert.Error(t, err)

	c, ok := d.Command("config_ws281x")
	require.True(t, ok)
	assert.Equal(t, uint16(2), c.ID)
	assert.Equal(t, "oid=%c pin=%u", c.Format)

	_, err = ParseDictionary([]byte("not json"))
	assert.Error(t, err)
}
