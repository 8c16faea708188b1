package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// DigitalOutput is a single output line already bound to a resolved pin.
// High and Low are called from inside busy-wait loops and must not block.
type DigitalOutput interface {
	High()
	Low()
}

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid
	ConfigureOutput(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error
}

// OutputProvider is implemented by drivers that can hand out a direct
// DigitalOutput for a configured pin, skipping the SetPin error path.
type OutputProvider interface {
	Output(pin GPIOPin) (DigitalOutput, error)
}

// Global singleton used by core code.
var gpioDriver GPIODriver

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}

// PinOutput resolves pin to a DigitalOutput through the registered driver.
func PinOutput(pin GPIOPin) (DigitalOutput, error) {
	drv := MustGPIO()
	if p, ok := drv.(OutputProvider); ok {
		return p.Output(pin)
	}
	if err := drv.ConfigureOutput(pin); err != nil {
		return nil, err
	}
	return driverOutput{drv: drv, pin: pin}, nil
}

// driverOutput adapts a plain GPIODriver. SetPin errors are dropped because
// the pin was configured when the output was resolved.
type driverOutput struct {
	drv GPIODriver
	pin GPIOPin
}

func (o driverOutput) High() { _ = o.drv.SetPin(o.pin, true) }
func (o driverOutput) Low()  { _ = o.drv.SetPin(o.pin, false) }
