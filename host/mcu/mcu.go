// Package mcu talks to gopixel firmware over the framed serial protocol.
package mcu

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"gopixel/core"
	"gopixel/host/serial"
	"gopixel/protocol"
)

const (
	identifyChunk = 40

	// UpdateChunk is the largest slice of strip data sent in one
	// ws281x_update; it leaves room for the command id, oid, position
	// and length in a single frame.
	UpdateChunk = 48

	responseTimeout = time.Second
)

// ErrSendFailed is returned when the firmware reports success=0.
var ErrSendFailed = errors.New("mcu: strip send failed")

// ErrConfigRejected is returned when the firmware shut down in response to
// a strip config command.
var ErrConfigRejected = errors.New("mcu: strip config rejected")

// MCU is a connection to one microcontroller.
type MCU struct {
	transport *protocol.HostTransport
	log       zerolog.Logger
	dict      *Dictionary
	raw       []byte
}

// New runs the protocol over an already open port.
func New(port io.ReadWriteCloser, log zerolog.Logger) *MCU {
	return &MCU{
		transport: protocol.NewHostTransport(port),
		log:       log,
	}
}

// Connect opens device and fetches the dictionary.
func Connect(device string, log zerolog.Logger) (*MCU, error) {
	port, err := serial.Open(serial.DefaultConfig(device))
	if err != nil {
		return nil, err
	}
	m := New(port, log.With().Str("device", device).Logger())
	if err := m.RetrieveDictionary(); err != nil {
		_ = m.Close()
		return nil, err
	}
	return m, nil
}

// Close stops the transport and closes the port.
func (m *MCU) Close() error {
	return m.transport.Close()
}

// Dictionary returns the dictionary fetched by RetrieveDictionary.
func (m *MCU) Dictionary() *Dictionary {
	return m.dict
}

// RawDictionary returns the dictionary bytes as received.
func (m *MCU) RawDictionary() []byte {
	return m.raw
}

// RetrieveDictionary reads the dictionary in identify chunks. identify and
// identify_response have fixed IDs so this works before anything else is
// known.
func (m *MCU) RetrieveDictionary() error {
	var buf bytes.Buffer
	for offset := uint32(0); ; {
		chunk, err := m.identify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("dictionary at offset %d: %w", offset, err)
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}
	m.raw = buf.Bytes()
	m.log.Debug().Int("bytes", len(m.raw)).Msg("dictionary retrieved")

	dict, err := ParseDictionary(m.raw)
	if err != nil {
		return err
	}
	m.dict = dict
	m.log.Info().Str("version", dict.Version).Int("commands", len(dict.Commands)).Msg("connected")
	return nil
}

func (m *MCU) identify(offset uint32, count uint8) ([]byte, error) {
	err := m.transport.SendCommand(1, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQUint(out, uint32(count))
	})
	if err != nil {
		return nil, err
	}
	payload, err := m.waitFor(0, responseTimeout)
	if err != nil {
		return nil, err
	}
	got, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	if got != offset {
		return nil, fmt.Errorf("identify offset %d, want %d", got, offset)
	}
	return protocol.DecodeVLQBytes(&payload)
}

// SendCommand encodes args as integers after the named command.
func (m *MCU) SendCommand(name string, args ...uint32) error {
	return m.SendCommandFunc(name, func(out protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(out, a)
		}
	})
}

// SendCommandFunc sends the named command with arguments written by fn.
func (m *MCU) SendCommandFunc(name string, fn func(out protocol.OutputBuffer)) error {
	if m.dict == nil {
		return errors.New("mcu: dictionary not loaded")
	}
	cmd, ok := m.dict.Command(name)
	if !ok {
		return fmt.Errorf("mcu: firmware has no command %s", name)
	}
	if err := m.transport.SendCommand(cmd.ID, fn); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// WaitResponse returns the arguments of the next response called name,
// discarding any other responses that arrive first.
func (m *MCU) WaitResponse(name string, timeout time.Duration) ([]byte, error) {
	resp, ok := m.dict.Response(name)
	if !ok {
		return nil, fmt.Errorf("mcu: firmware has no response %s", name)
	}
	return m.waitFor(resp.ID, timeout)
}

func (m *MCU) waitFor(id uint16, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		left := time.Until(deadline)
		if left <= 0 {
			return nil, fmt.Errorf("timed out waiting for response %d", id)
		}
		msg, err := m.transport.ReceiveResponse(left)
		if err != nil {
			return nil, err
		}
		payload := msg.Payload
		got, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			return nil, err
		}
		if uint16(got) == id {
			return payload, nil
		}
		m.log.Debug().Uint32("id", got).Msg("skipping unrelated response")
	}
}

// Clock reads the firmware's cycle counter.
func (m *MCU) Clock() (uint32, error) {
	if err := m.SendCommand("get_clock"); err != nil {
		return 0, err
	}
	payload, err := m.WaitResponse("clock", responseTimeout)
	if err != nil {
		return 0, err
	}
	return protocol.DecodeVLQUint(&payload)
}

// Uptime reads the firmware's 64-bit cycle count since boot.
func (m *MCU) Uptime() (uint64, error) {
	if err := m.SendCommand("get_uptime"); err != nil {
		return 0, err
	}
	payload, err := m.WaitResponse("uptime", responseTimeout)
	if err != nil {
		return 0, err
	}
	args, err := decodeArgs(&payload, 2)
	if err != nil {
		return 0, err
	}
	return uint64(args[0])<<32 | uint64(args[1]), nil
}

// Status is the firmware's answer to get_config.
type Status struct {
	Configured bool
	CRC        uint32
	Shutdown   bool
}

// Status queries the configuration and shutdown state.
func (m *MCU) Status() (Status, error) {
	if err := m.SendCommand("get_config"); err != nil {
		return Status{}, err
	}
	payload, err := m.WaitResponse("config", responseTimeout)
	if err != nil {
		return Status{}, err
	}
	args, err := decodeArgs(&payload, 3)
	if err != nil {
		return Status{}, err
	}
	return Status{Configured: args[0] != 0, CRC: args[1], Shutdown: args[2] != 0}, nil
}

// EmergencyStop drives every strip low and refuses sends until Reset.
func (m *MCU) EmergencyStop() error {
	return m.SendCommand("emergency_stop")
}

func decodeArgs(payload *[]byte, n int) ([]uint32, error) {
	args := make([]uint32, n)
	for i := range args {
		v, err := protocol.DecodeVLQUint(payload)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// ConfigureStrip sets up a single-line strip of size bytes. pin may be a
// dictionary pin name or a number.
func (m *MCU) ConfigureStrip(oid uint8, pin string, size int, v core.Variant, o core.ChannelOrder) error {
	if m.dict == nil {
		return errors.New("mcu: dictionary not loaded")
	}
	p, err := m.dict.Enum("pin", pin)
	if err != nil {
		return err
	}
	vi, err := m.dict.Enum("ws281x_variant", v.String())
	if err != nil {
		return err
	}
	oi, err := m.dict.Enum("ws281x_order", o.String())
	if err != nil {
		return err
	}
	if err := m.checkSize(size); err != nil {
		return err
	}
	m.log.Debug().Uint8("oid", oid).Str("pin", pin).Int("size", size).Stringer("variant", v).Msg("config_ws281x")
	if err := m.SendCommand("config_ws281x", uint32(oid), p, uint32(size), vi, oi); err != nil {
		return err
	}
	return m.checkAccepted(oid)
}

// ConfigureDualStrip sets up two lines fed in lock-step; size covers both.
func (m *MCU) ConfigureDualStrip(oid uint8, pinA, pinB string, size int) error {
	if m.dict == nil {
		return errors.New("mcu: dictionary not loaded")
	}
	a, err := m.dict.Enum("pin", pinA)
	if err != nil {
		return err
	}
	b, err := m.dict.Enum("pin", pinB)
	if err != nil {
		return err
	}
	if size%2 != 0 {
		return core.ErrUnevenChannels
	}
	if err := m.checkSize(size); err != nil {
		return err
	}
	if err := m.SendCommand("config_ws281x_dual", uint32(oid), a, b, uint32(size)); err != nil {
		return err
	}
	return m.checkAccepted(oid)
}

// checkAccepted asks whether the last config command shut the firmware
// down. Commands run in order, so get_config answers after it.
func (m *MCU) checkAccepted(oid uint8) error {
	st, err := m.Status()
	if err != nil {
		return err
	}
	if st.Shutdown {
		return fmt.Errorf("oid %d: %w", oid, ErrConfigRejected)
	}
	return nil
}

func (m *MCU) checkSize(size int) error {
	limit, err := m.dict.Constant("WS281X_MAX_BYTES")
	if err != nil {
		return err
	}
	if size <= 0 || uint32(size) > limit {
		return fmt.Errorf("strip size %d outside 1..%d", size, limit)
	}
	return nil
}

// UpdateStrip copies data into the strip's staging buffer starting at 0.
func (m *MCU) UpdateStrip(oid uint8, data []byte) error {
	for pos := 0; pos < len(data); pos += UpdateChunk {
		end := pos + UpdateChunk
		if end > len(data) {
			end = len(data)
		}
		chunk := data[pos:end]
		err := m.SendCommandFunc("ws281x_update", func(out protocol.OutputBuffer) {
			protocol.EncodeVLQUint(out, uint32(oid))
			protocol.EncodeVLQUint(out, uint32(pos))
			protocol.EncodeVLQBytes(out, chunk)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// SendStrip transmits the staging buffer and waits for the result.
func (m *MCU) SendStrip(oid uint8) error {
	if err := m.SendCommand("ws281x_send", uint32(oid)); err != nil {
		return err
	}
	payload, err := m.WaitResponse("ws281x_result", responseTimeout)
	if err != nil {
		return err
	}
	gotOID, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return err
	}
	success, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return err
	}
	if gotOID != uint32(oid) {
		return fmt.Errorf("ws281x_result for oid %d, want %d", gotOID, oid)
	}
	if success == 0 {
		return fmt.Errorf("oid %d: %w", oid, ErrSendFailed)
	}
	return nil
}

// WriteStrip updates and sends in one call.
func (m *MCU) WriteStrip(oid uint8, data []byte) error {
	if err := m.UpdateStrip(oid, data); err != nil {
		return err
	}
	return m.SendStrip(oid)
}

// Reset forgets every strip on the firmware side.
func (m *MCU) Reset() error {
	return m.SendCommand("config_reset")
}
