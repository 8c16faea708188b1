package bitbang

import (
	"fmt"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"

	"gopixel/core"
)

// DefaultSPIFreq is the NRZ bit rate used when none is configured.
const DefaultSPIFreq = 2500 * physic.KiloHertz

// SPIStrip sends frames through an SPI port with the nrzled encoder, for
// hosts where GPIO toggling is too slow or too jittery.
type SPIStrip struct {
	port spi.PortCloser
	dev  *nrzled.Dev
}

// OpenSPI opens port ("" for the first one) for a strip of numPixels RGB
// pixels.
func OpenSPI(port string, numPixels int, freq physic.Frequency) (*SPIStrip, error) {
	if err := Init(); err != nil {
		return nil, fmt.Errorf("periph init: %w", err)
	}
	if freq == 0 {
		freq = DefaultSPIFreq
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open spi %q: %w", port, err)
	}
	dev, err := nrzled.NewSPI(p, &nrzled.Opts{
		NumPixels: numPixels,
		Channels:  3,
		Freq:      freq,
	})
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	return &SPIStrip{port: p, dev: dev}, nil
}

// Write sends buf, given in order. nrzled takes RGB and emits GRB itself,
// so wire-order buffers are swapped back first.
func (s *SPIStrip) Write(buf []byte, order core.ChannelOrder) error {
	if order == core.OrderGRB {
		buf = core.ReorderChannels(buf)
	}
	_, err := s.dev.Write(buf)
	return err
}

// Close blanks the strip and releases the port.
func (s *SPIStrip) Close() error {
	if err := s.dev.Halt(); err != nil {
		s.port.Close()
		return err
	}
	return s.port.Close()
}
