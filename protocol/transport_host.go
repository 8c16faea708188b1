package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAckTimeout bounds how long SendCommand waits for the firmware.
const DefaultAckTimeout = 2 * time.Second

var ErrTransportClosed = errors.New("protocol: transport closed")

// ResponseHandler is called from the read loop for every response frame.
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host side of the link: it frames commands, waits
// for their ACK and collects the responses the firmware sends back.
type HostTransport struct {
	port io.ReadWriteCloser

	currentSeq uint32 // atomic; 0x10..0x1F
	scanner    frameScanner
	input      *FifoBuffer

	ackChan      chan *Message
	responseChan chan *Message

	handlerMu       sync.RWMutex
	responseHandler ResponseHandler

	// sendMu serialises whole command/ACK exchanges.
	sendMu sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts a read loop on port.
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		currentSeq:   MessageDest,
		scanner:      newFrameScanner(false),
		input:        NewFifoBuffer(1024),
		ackChan:      make(chan *Message, 1),
		responseChan: make(chan *Message, 16),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	go t.readLoop()
	return t
}

// SendCommand sends one command and waits for its ACK.
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, DefaultAckTimeout)
}

// SendCommandWithTimeout is SendCommand with an explicit ACK timeout.
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	seq := t.Sequence()
	frame, err := AppendFrame(nil, seq, scratch.Result())
	if err != nil {
		return fmt.Errorf("command %d: %w", cmdID, err)
	}
	if _, err := t.port.Write(frame); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	}
	if err := t.waitForAck(seq, timeout); err != nil {
		return fmt.Errorf("command %d: %w", cmdID, err)
	}
	return nil
}

// waitForAck waits for the ACK that names the sequence after seq.
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	want := NextSequence(seq)
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ack := <-t.ackChan:
			if ack.Sequence != want {
				// A NAK or a stale ACK from an earlier exchange.
				continue
			}
			atomic.StoreUint32(&t.currentSeq, uint32(want))
			return nil
		case <-timer.C:
			return fmt.Errorf("no ACK for seq 0x%02x after %v", seq, timeout)
		case <-t.stopChan:
			return ErrTransportClosed
		}
	}
}

// ReceiveResponse returns the next response frame.
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-t.responseChan:
		return resp, nil
	case <-timer.C:
		return nil, fmt.Errorf("no response after %v", timeout)
	case <-t.stopChan:
		return nil, ErrTransportClosed
	}
}

// SetResponseHandler installs a callback for every response. Responses
// are still queued for ReceiveResponse.
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.handlerMu.Lock()
	t.responseHandler = handler
	t.handlerMu.Unlock()
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)
	buf := make([]byte, 256)
	for {
		select {
		case <-t.stopChan:
			return
		default:
		}
		n, err := t.port.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}
		t.input.Write(buf[:n])
		consumed := t.scanner.scan(t.input.Data(), t.dispatch, nil)
		t.input.Pop(consumed)
	}
}

func (t *HostTransport) dispatch(frame *Message) {
	// The scanner's payload aliases the input ring.
	msg := *frame
	msg.Payload = append([]byte(nil), frame.Payload...)

	if msg.IsAck() {
		select {
		case t.ackChan <- &msg:
		default:
			// Replace an ACK nobody collected.
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- &msg
		}
		return
	}

	t.handlerMu.RLock()
	handler := t.responseHandler
	t.handlerMu.RUnlock()
	if handler != nil {
		data := msg.Payload
		if cmdID, err := DecodeVLQUint(&data); err == nil {
			_ = handler(uint16(cmdID), &data)
		}
	}

	select {
	case t.responseChan <- &msg:
	default:
		// Drop the oldest response.
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- &msg
	}
}

// Close stops the read loop and closes the port.
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset restarts the sequence at MessageDest and drops queued frames.
func (t *HostTransport) Reset() {
	t.sendMu.Lock()
	defer t.sendMu.Unlock()
	atomic.StoreUint32(&t.currentSeq, MessageDest)
	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}
}

// Sequence returns the sequence byte the next command will carry.
func (t *HostTransport) Sequence() uint8 {
	return uint8(atomic.LoadUint32(&t.currentSeq))
}
