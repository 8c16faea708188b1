// Package stream accepts strip frames over a websocket and hands them to a
// strip writer, one binary message per frame.
package stream

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gopixel/core"
)

// Sink is anything a frame can be written to: a bit-banged line, an SPI
// strip, the console preview, or a strip on the MCU.
type Sink interface {
	Write(buf []byte, order core.ChannelOrder) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(buf []byte, order core.ChannelOrder) error

func (f SinkFunc) Write(buf []byte, order core.ChannelOrder) error {
	return f(buf, order)
}

// Reply is sent back as JSON after every binary message.
type Reply struct {
	Frame uint64 `json:"frame"`
	Error string `json:"error,omitempty"`
}

// ErrFrameSize is reported when a message is not exactly one frame.
var ErrFrameSize = errors.New("stream: wrong frame size")

// Server is an http.Handler that upgrades to a websocket and writes every
// binary message it receives to the sink. Writes from several clients are
// serialized.
type Server struct {
	sink      Sink
	order     core.ChannelOrder
	frameSize int
	log       zerolog.Logger
	upgrader  websocket.Upgrader

	mu     sync.Mutex
	frames uint64
}

// NewServer returns a Server for frames of frameSize bytes in order.
func NewServer(sink Sink, order core.ChannelOrder, frameSize int, log zerolog.Logger) *Server {
	return &Server{
		sink:      sink,
		order:     order,
		frameSize: frameSize,
		log:       log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Frames returns the number of frames written so far.
func (s *Server) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	log := s.log.With().Str("remote", r.RemoteAddr).Logger()
	log.Info().Msg("client connected")

	for {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("read failed")
			}
			log.Info().Msg("client disconnected")
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		reply := s.write(msg)
		if reply.Error != "" {
			log.Warn().Str("error", reply.Error).Int("bytes", len(msg)).Msg("frame rejected")
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Debug().Err(err).Msg("reply failed")
			return
		}
	}
}

func (s *Server) write(msg []byte) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(msg) != s.frameSize {
		err := fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(msg), s.frameSize)
		return Reply{Frame: s.frames, Error: err.Error()}
	}
	if err := s.sink.Write(msg, s.order); err != nil {
		return Reply{Frame: s.frames, Error: err.Error()}
	}
	s.frames++
	return Reply{Frame: s.frames}
}
