// Package serial opens the USB CDC link to the firmware.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// Port is the link the protocol transport runs over.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Config describes how to open a port.
type Config struct {
	Device string
	// Baud is ignored by USB CDC but required by the OS driver.
	Baud        int
	ReadTimeout time.Duration
}

// DefaultConfig returns the settings used by gopixel-host.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Open opens cfg.Device. The returned port's Read returns (0, nil) after
// ReadTimeout with no data.
func Open(cfg *Config) (Port, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, errors.New("serial: no device given")
	}
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Device, err)
	}
	return p, nil
}
