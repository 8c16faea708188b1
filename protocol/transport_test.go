package protocol

import (
	"bytes"
	"net"
	"testing"
	"time"
)

type recordedCommand struct {
	id   uint16
	args []uint32
}

// recorder decodes every command as a list of VLQ integers.
type recorder struct {
	commands []recordedCommand
}

func (r *recorder) handle(cmdID uint16, data *[]byte) error {
	rc := recordedCommand{id: cmdID}
	for len(*data) > 0 {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		rc.args = append(rc.args, v)
	}
	r.commands = append(r.commands, rc)
	return nil
}

func mustFrame(t *testing.T, seq uint8, payload ...byte) []byte {
	t.Helper()
	f, err := AppendFrame(nil, seq, payload)
	if err != nil {
		t.Fatal(err)
	}
	return f
}

// frames splits out into validated frames.
func frames(out []byte) []Message {
	var msgs []Message
	s := newFrameScanner(false)
	s.scan(out, func(m *Message) {
		c := *m
		c.Payload = append([]byte(nil), m.Payload...)
		msgs = append(msgs, c)
	}, nil)
	return msgs
}

func TestAppendFrameLayout(t *testing.T) {
	f := mustFrame(t, 0x13, 0x01, 0x02)
	if len(f) != 7 || f[0] != 7 || f[1] != 0x13 || f[6] != MessageValueSync {
		t.Fatalf("frame = % X", f)
	}
	crc := CRC16(f[:4])
	if f[4] != uint8(crc>>8) || f[5] != uint8(crc) {
		t.Errorf("crc bytes % X, want %04X", f[4:6], crc)
	}

	if _, err := AppendFrame(nil, MessageDest, make([]byte, MessagePayloadMax+1)); err != ErrFrameTooLong {
		t.Errorf("oversize payload: %v", err)
	}
}

func TestNextSequenceWraps(t *testing.T) {
	if NextSequence(0x1F) != 0x10 {
		t.Errorf("NextSequence(0x1F) = 0x%02X", NextSequence(0x1F))
	}
}

func TestTransportDispatchAndAck(t *testing.T) {
	out := NewScratchOutput()
	rec := &recorder{}
	tr := NewTransport(out, rec.handle)

	tr.Receive(NewSliceInputBuffer(mustFrame(t, 0x10, 5, 1, 2)))

	if len(rec.commands) != 1 || rec.commands[0].id != 5 {
		t.Fatalf("commands = %+v", rec.commands)
	}
	acks := frames(out.Result())
	if len(acks) != 1 || !acks[0].IsAck() || acks[0].Sequence != 0x11 {
		t.Fatalf("ack = %+v", acks)
	}
}

func TestTransportMultipleCommandsPerFrame(t *testing.T) {
	rec := &recorder{}
	tr := NewTransport(NewScratchOutput(), func(id uint16, data *[]byte) error {
		// Each command here takes exactly one argument.
		v, err := DecodeVLQUint(data)
		rec.commands = append(rec.commands, recordedCommand{id: id, args: []uint32{v}})
		return err
	})
	tr.Receive(NewSliceInputBuffer(mustFrame(t, 0x10, 3, 7, 4, 8)))
	if len(rec.commands) != 2 || rec.commands[1].id != 4 || rec.commands[1].args[0] != 8 {
		t.Errorf("commands = %+v", rec.commands)
	}
}

func TestTransportOutOfSequenceIsNaked(t *testing.T) {
	out := NewScratchOutput()
	rec := &recorder{}
	tr := NewTransport(out, rec.handle)

	tr.Receive(NewSliceInputBuffer(mustFrame(t, 0x10, 1)))
	out.Reset()
	tr.Receive(NewSliceInputBuffer(mustFrame(t, 0x13, 2)))

	if len(rec.commands) != 1 {
		t.Errorf("out-of-sequence frame dispatched: %+v", rec.commands)
	}
	naks := frames(out.Result())
	if len(naks) != 1 || naks[0].Sequence != 0x11 {
		t.Errorf("nak = %+v", naks)
	}
}

func TestTransportResyncAfterGarbage(t *testing.T) {
	rec := &recorder{}
	tr := NewTransport(NewScratchOutput(), rec.handle)

	in := append([]byte{0x01, 0x99, MessageValueSync}, mustFrame(t, 0x10, 9)...)
	buf := NewSliceInputBuffer(in)
	tr.Receive(buf)

	if len(rec.commands) != 1 || rec.commands[0].id != 9 {
		t.Errorf("commands = %+v", rec.commands)
	}
	if buf.Available() != 0 {
		t.Errorf("%d bytes left unconsumed", buf.Available())
	}
}

func TestTransportRejectsBadCRC(t *testing.T) {
	rec := &recorder{}
	tr := NewTransport(NewScratchOutput(), rec.handle)

	f := mustFrame(t, 0x10, 1)
	f[len(f)-2] ^= 0xFF
	tr.Receive(NewSliceInputBuffer(f))
	if len(rec.commands) != 0 {
		t.Errorf("corrupt frame dispatched: %+v", rec.commands)
	}
}

func TestTransportKeepsPartialFrame(t *testing.T) {
	rec := &recorder{}
	tr := NewTransport(NewScratchOutput(), rec.handle)

	f := mustFrame(t, 0x10, 1, 2, 3)
	buf := NewSliceInputBuffer(f[:4])
	tr.Receive(buf)
	if buf.Available() != 4 || len(rec.commands) != 0 {
		t.Fatalf("partial frame consumed: left %d, commands %+v", buf.Available(), rec.commands)
	}
	tr.Receive(NewSliceInputBuffer(f))
	if len(rec.commands) != 1 {
		t.Errorf("complete frame not dispatched")
	}
}

func TestTransportDetectsHostRestart(t *testing.T) {
	resets := 0
	rec := &recorder{}
	tr := NewTransport(NewScratchOutput(), rec.handle)
	tr.SetResetCallback(func() { resets++ })

	tr.Receive(NewSliceInputBuffer(mustFrame(t, 0x10, 1)))
	tr.Receive(NewSliceInputBuffer(mustFrame(t, 0x11, 2)))
	tr.Receive(NewSliceInputBuffer(mustFrame(t, 0x10, 3)))

	if resets != 1 {
		t.Errorf("resets = %d", resets)
	}
	if len(rec.commands) != 3 {
		t.Errorf("commands = %+v", rec.commands)
	}
}

func TestTransportSendCommand(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, nil)
	tr.SendCommand(4, func(o OutputBuffer) {
		EncodeVLQUint(o, 300)
	})

	msgs := frames(out.Result())
	if len(msgs) != 1 || msgs[0].Sequence != MessageDest {
		t.Fatalf("frames = %+v", msgs)
	}
	payload := msgs[0].Payload
	id, _ := DecodeVLQUint(&payload)
	arg, _ := DecodeVLQUint(&payload)
	if id != 4 || arg != 300 {
		t.Errorf("decoded id=%d arg=%d", id, arg)
	}
}

// serveFirmware runs a firmware Transport on conn until it is closed.
func serveFirmware(conn net.Conn, handler func(tr *Transport, id uint16, data *[]byte) error) {
	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(id uint16, data *[]byte) error {
		return handler(tr, id, data)
	})
	go func() {
		var pending []byte
		buf := make([]byte, 128)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			pending = append(pending, buf[:n]...)
			in := NewSliceInputBuffer(pending)
			tr.Receive(in)
			pending = append(pending[:0], in.Data()...)
			if res := out.Result(); len(res) > 0 {
				if _, err := conn.Write(append([]byte(nil), res...)); err != nil {
					return
				}
				out.Reset()
			}
		}
	}()
}

func TestHostTransportRoundTrip(t *testing.T) {
	hostConn, mcuConn := net.Pipe()
	serveFirmware(mcuConn, func(tr *Transport, id uint16, data *[]byte) error {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		tr.SendCommand(id+1, func(o OutputBuffer) { EncodeVLQUint(o, v*2) })
		return nil
	})

	host := NewHostTransport(hostConn)
	defer host.Close()

	for i := uint32(0); i < 20; i++ {
		err := host.SendCommand(6, func(o OutputBuffer) { EncodeVLQUint(o, i) })
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		resp, err := host.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("response %d: %v", i, err)
		}
		payload := resp.Payload
		id, _ := DecodeVLQUint(&payload)
		v, _ := DecodeVLQUint(&payload)
		if id != 7 || v != i*2 {
			t.Errorf("response %d: id=%d v=%d", i, id, v)
		}
	}
	if host.Sequence() != NextSequence(0x13) {
		// 20 commands from 0x10 wrap once and end at 0x14.
		t.Errorf("sequence = 0x%02X", host.Sequence())
	}
}

func TestHostTransportAckTimeout(t *testing.T) {
	hostConn, mcuConn := net.Pipe()
	go func() {
		// Swallow everything and never answer.
		buf := make([]byte, 64)
		for {
			if _, err := mcuConn.Read(buf); err != nil {
				return
			}
		}
	}()
	host := NewHostTransport(hostConn)
	defer host.Close()

	err := host.SendCommandWithTimeout(1, nil, 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if host.Sequence() != MessageDest {
		t.Errorf("sequence advanced without ACK: 0x%02X", host.Sequence())
	}
}

func TestHostTransportResponseHandler(t *testing.T) {
	hostConn, mcuConn := net.Pipe()
	serveFirmware(mcuConn, func(tr *Transport, id uint16, data *[]byte) error {
		tr.SendCommand(2, func(o OutputBuffer) { EncodeVLQBytes(o, []byte("hi")) })
		return nil
	})
	host := NewHostTransport(hostConn)
	defer host.Close()

	got := make(chan []byte, 1)
	host.SetResponseHandler(func(id uint16, data *[]byte) error {
		b, err := DecodeVLQBytes(data)
		got <- append([]byte(nil), b...)
		return err
	})
	if err := host.SendCommand(1, nil); err != nil {
		t.Fatal(err)
	}
	select {
	case b := <-got:
		if !bytes.Equal(b, []byte("hi")) {
			t.Errorf("handler got %q", b)
		}
	case <-time.After(time.Second):
		t.Fatal("handler not called")
	}
}
