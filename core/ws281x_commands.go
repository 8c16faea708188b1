package core

import (
	"errors"
	"image/color"

	"gopixel/protocol"
	"tinygo.org/x/drivers"
)

const (
	// MaxStripBytes bounds the staging buffer of one strip (512 RGB pixels).
	MaxStripBytes = 1536

	// ResetNS is the minimum low time between two frames; the strip latches
	// the previous frame during it.
	ResetNS = 50000
)

var (
	ErrUnknownOID  = errors.New("ws281x: unknown oid")
	ErrStripSize   = errors.New("ws281x: invalid data size")
	ErrStripRange  = errors.New("ws281x: update outside strip buffer")
	ErrVariant     = errors.New("ws281x: invalid variant")
	ErrOrder       = errors.New("ws281x: invalid channel order")
	ErrShutdown    = errors.New("ws281x: firmware is shut down")
	ErrDuplicateID = errors.New("ws281x: oid already configured")
)

// Strip is a configured LED strip: its output line(s) and a staging buffer
// the host fills with ws281x_update before triggering ws281x_send.
// A dual strip drives two lines; the first half of the buffer goes to
// pin A and the second half to pin B.
type Strip struct {
	OID     uint8
	Pins    []GPIOPin
	Variant Variant
	Order   ChannelOrder

	data       []byte
	outs       []DigitalOutput
	lastEnd    uint32
	sentBefore bool
}

var strips = make(map[uint8]*Strip)

// NewStrip configures pin as an idle-low output and allocates size bytes.
func NewStrip(oid uint8, pin GPIOPin, size int, v Variant, order ChannelOrder) (*Strip, error) {
	if size <= 0 || size > MaxStripBytes {
		return nil, ErrStripSize
	}
	if v != VariantWS2812 && v != VariantWS2811 {
		return nil, ErrVariant
	}
	if order != OrderGRB && order != OrderRGB {
		return nil, ErrOrder
	}
	return newStrip(oid, []GPIOPin{pin}, size, v, order)
}

// NewDualStrip configures two lines fed in lock-step. size covers both
// channels and must be even. Dual strips always send in wire order.
func NewDualStrip(oid uint8, pinA, pinB GPIOPin, size int) (*Strip, error) {
	if size <= 0 || size > MaxStripBytes || size%2 != 0 {
		return nil, ErrStripSize
	}
	return newStrip(oid, []GPIOPin{pinA, pinB}, size, VariantDual, OrderGRB)
}

func newStrip(oid uint8, pins []GPIOPin, size int, v Variant, order ChannelOrder) (*Strip, error) {
	s := &Strip{
		OID:     oid,
		Pins:    pins,
		Variant: v,
		Order:   order,
		data:    make([]byte, size),
	}
	for _, pin := range pins {
		if err := MustGPIO().ConfigureOutput(pin); err != nil {
			return nil, err
		}
		out, err := PinOutput(pin)
		if err != nil {
			return nil, err
		}
		out.Low()
		s.outs = append(s.outs, out)
	}
	return s, nil
}

// IsDual reports whether the strip drives two lines.
func (s *Strip) IsDual() bool {
	return len(s.outs) == 2
}

// Data returns the staging buffer. Callers may modify it between sends.
func (s *Strip) Data() []byte {
	return s.data
}

// Update copies b into the staging buffer at pos.
func (s *Strip) Update(pos int, b []byte) error {
	if pos < 0 || pos > len(s.data) || len(b) > len(s.data)-pos {
		return ErrStripRange
	}
	copy(s.data[pos:], b)
	return nil
}

// Send transmits the staging buffer once. If the previous frame ended less
// than ResetNS ago it first waits out the latch window.
func (s *Strip) Send() error {
	if IsShutdown() {
		RecordTiming(EvtReject, s.OID, 0, 0, uint32(len(s.data)))
		return ErrShutdown
	}
	w, err := DefaultWriter()
	if err != nil {
		return err
	}

	reset := cyclesFromNSCeil(w.freq, ResetNS)
	if s.sentBefore {
		if now := w.clock.Now(); now-s.lastEnd < reset {
			RecordTiming(EvtLatch, s.OID, now, reset-(now-s.lastEnd), 0)
			spinUntil(w.clock, s.lastEnd, reset)
		}
	}

	buf := s.Order.prepare(s.data)
	start := w.clock.Now()
	evt := uint8(EvtSend)
	perChannel := len(buf)
	if s.IsDual() {
		evt = EvtSendDual
		perChannel /= 2
		err = w.WriteDual(s.outs[0], s.outs[1], buf)
	} else {
		w.WriteSingle(s.outs[0], buf, s.Variant)
	}
	end := w.clock.Now()
	s.lastEnd, s.sentBefore = end, true
	RecordTiming(evt, s.OID, start, end-start, uint32(perChannel))
	return err
}

// Shutdown drives every line of the strip low.
func (s *Strip) Shutdown() {
	for _, out := range s.outs {
		out.Low()
	}
}

// Size implements drivers.Displayer. A dual strip is two rows.
func (s *Strip) Size() (x, y int16) {
	rows := len(s.outs)
	return int16(len(s.data) / rows / 3), int16(rows)
}

// SetPixel implements drivers.Displayer, storing c in the strip's channel
// order. Out-of-range coordinates are ignored.
func (s *Strip) SetPixel(x, y int16, c color.RGBA) {
	w, h := s.Size()
	if x < 0 || y < 0 || x >= w || y >= h {
		return
	}
	i := (int(y)*len(s.data)/int(h) + int(x)*3)
	if s.Order == OrderRGB {
		s.data[i], s.data[i+1], s.data[i+2] = c.R, c.G, c.B
	} else {
		s.data[i], s.data[i+1], s.data[i+2] = c.G, c.R, c.B
	}
}

// Display implements drivers.Displayer.
func (s *Strip) Display() error {
	return s.Send()
}

var _ drivers.Displayer = (*Strip)(nil)

// AddStrip registers s under its OID.
func AddStrip(s *Strip) error {
	if _, exists := strips[s.OID]; exists {
		return ErrDuplicateID
	}
	strips[s.OID] = s
	return nil
}

// GetStrip looks up a configured strip.
func GetStrip(oid uint8) (*Strip, bool) {
	s, ok := strips[oid]
	return s, ok
}

// ShutdownAllStrips drives every configured line low.
func ShutdownAllStrips() {
	for _, s := range strips {
		s.Shutdown()
	}
}

// ResetStrips shuts down and forgets every strip.
func ResetStrips() {
	ShutdownAllStrips()
	strips = make(map[uint8]*Strip)
}

// InitWS281xCommands registers the strip commands with the command registry
func InitWS281xCommands() {
	RegisterCommand("config_ws281x", "oid=%c pin=%u data_size=%hu variant=%c order=%c", handleConfigWS281x)
	RegisterCommand("config_ws281x_dual", "oid=%c pin_a=%u pin_b=%u data_size=%hu", handleConfigWS281xDual)
	RegisterCommand("ws281x_update", "oid=%c pos=%hu data=%*s", handleWS281xUpdate)
	RegisterCommand("ws281x_send", "oid=%c", handleWS281xSend)
	RegisterResponse("ws281x_result", "oid=%c success=%c")

	RegisterConstant("WS281X_MAX_BYTES", MaxStripBytes)
	RegisterEnumeration("ws281x_variant", []string{VariantWS2812.String(), VariantWS2811.String()})
	RegisterEnumeration("ws281x_order", []string{OrderGRB.String(), OrderRGB.String()})
}

// Format: config_ws281x oid=%c pin=%u data_size=%hu variant=%c order=%c
func handleConfigWS281x(data *[]byte) error {
	args, err := decodeArgs(data, 5)
	if err != nil {
		return err
	}
	s, err := NewStrip(uint8(args[0]), GPIOPin(args[1]), int(args[2]), Variant(args[3]), ChannelOrder(args[4]))
	if err == nil {
		err = AddStrip(s)
	}
	return rejectConfig("config_ws281x", err)
}

// Format: config_ws281x_dual oid=%c pin_a=%u pin_b=%u data_size=%hu
func handleConfigWS281xDual(data *[]byte) error {
	args, err := decodeArgs(data, 4)
	if err != nil {
		return err
	}
	s, err := NewDualStrip(uint8(args[0]), GPIOPin(args[1]), GPIOPin(args[2]), int(args[3]))
	if err == nil {
		err = AddStrip(s)
	}
	return rejectConfig("config_ws281x_dual", err)
}

// rejectConfig shuts the firmware down when a config command fails. The
// transport acks the frame either way, so the shutdown is what the host sees.
func rejectConfig(cmd string, err error) error {
	if err != nil {
		TryShutdown(cmd + ": " + err.Error())
	}
	return err
}

// Format: ws281x_update oid=%c pos=%hu data=%*s
func handleWS281xUpdate(data *[]byte) error {
	args, err := decodeArgs(data, 2)
	if err != nil {
		return err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}
	s, ok := GetStrip(uint8(args[0]))
	if !ok {
		return ErrUnknownOID
	}
	return s.Update(int(args[1]), payload)
}

// Format: ws281x_send oid=%c, answered with ws281x_result oid=%c success=%c
func handleWS281xSend(data *[]byte) error {
	oid, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	success := false
	if s, ok := GetStrip(uint8(oid)); ok {
		if err := s.Send(); err != nil {
			DebugPrintln("[ws281x] send oid=" + utoa(oid) + ": " + err.Error())
		} else {
			success = true
		}
	}
	SendResponse("ws281x_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, oid)
		protocol.EncodeVLQUint(output, boolToUint(success))
	})
	return nil
}

// decodeArgs decodes n consecutive VLQ integers.
func decodeArgs(data *[]byte, n int) ([]uint32, error) {
	args := make([]uint32, n)
	for i := range args {
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
