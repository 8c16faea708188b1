//go:build rp2350

package main

import (
	"errors"

	"machine"

	"gopixel/core"
)

// rp2350PinCount covers the 48 GPIOs of the RP2350B package.
const rp2350PinCount = 48

var errInvalidPin = errors.New("rp2350: invalid gpio")

// RPGPIODriver implements core.GPIODriver and core.OutputProvider. The
// outputs it hands out are machine.Pin values, whose High/Low are single
// SIO register writes.
type RPGPIODriver struct {
	configuredPins map[core.GPIOPin]machine.Pin
}

func NewRPGPIODriver() *RPGPIODriver {
	return &RPGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

// ConfigureOutput configures pin as a push-pull output. Reconfiguring an
// already configured pin is a no-op.
func (d *RPGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	if _, exists := d.configuredPins[pin]; exists {
		return nil
	}
	if pin >= rp2350PinCount {
		return errInvalidPin
	}
	mp := machine.Pin(pin)
	mp.Configure(machine.PinConfig{Mode: machine.PinOutput})
	d.configuredPins[pin] = mp
	return nil
}

func (d *RPGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	mp, exists := d.configuredPins[pin]
	if !exists {
		if err := d.ConfigureOutput(pin); err != nil {
			return err
		}
		mp = d.configuredPins[pin]
	}
	mp.Set(value)
	return nil
}

// Output returns the configured machine.Pin for pin.
func (d *RPGPIODriver) Output(pin core.GPIOPin) (core.DigitalOutput, error) {
	if err := d.ConfigureOutput(pin); err != nil {
		return nil, err
	}
	return d.configuredPins[pin], nil
}

// registerRP2350Pins publishes the "pin" enumeration: index n is gpioN.
func registerRP2350Pins() {
	names := make([]string, rp2350PinCount)
	for i := range names {
		names[i] = "gpio" + itoa(i)
	}
	core.RegisterEnumeration("pin", names)
}
