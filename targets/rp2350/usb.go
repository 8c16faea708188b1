//go:build rp2350

package main

import "machine"

// On the RP2350 machine.Serial is the USB CDC-ACM endpoint set up by the
// TinyGo runtime.

func InitUSB() {
	_ = machine.Serial.Configure(machine.UARTConfig{})
}

// USBAvailable returns the number of bytes waiting to be read.
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBRead reads one byte.
func USBRead() (byte, error) {
	return machine.Serial.ReadByte()
}

// USBWriteBytes writes data and returns how much was accepted.
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
