//go:build rp2350

package main

import (
	"machine"
	"time"

	"gopixel/core"
	"gopixel/protocol"
)

var (
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	msgerrors                uint32
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
	reportedShutdown         bool
)

func main() {
	InitUSB()
	InitDebugUART()

	// A watchdog left armed by a previous reset would fire mid-boot.
	if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0}); err != nil {
		return
	}

	InitClock()
	core.SetDebugWriter(DebugPrintln)
	core.SetDebugEnabled(debugUART != nil)

	// Core commands first: identify must keep IDs 0 and 1.
	core.InitCoreCommands()
	core.InitWS281xCommands()
	registerRP2350Pins()
	core.SetGPIODriver(NewRPGPIODriver())

	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, core.DispatchCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	transport.SetFlushCallback(writeUSB)
	core.SetGlobalTransport(transport)

	core.SetResetHandler(func() {
		// Watchdog reset re-enumerates USB more reliably than SYSRESETREQ.
		if err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1}); err != nil {
			return
		}
		if err := machine.Watchdog.Start(); err != nil {
			return
		}
		for {
			time.Sleep(time.Millisecond)
		}
	})

	go usbReaderLoop()

	for {
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				in := protocol.NewSliceInputBuffer(data)
				transport.Receive(in)
				if consumed := len(data) - in.Available(); consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}

			core.CheckPendingReset()

			if core.IsShutdown() != reportedShutdown {
				reportedShutdown = core.IsShutdown()
				if reportedShutdown {
					core.DumpTimingRing()
				}
			}
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// usbReaderLoop moves bytes from USB into inputBuffer.
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		if USBAvailable() > 0 {
			b, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(time.Millisecond)
				continue
			}

			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				core.ResetFirmwareState()
				consecutiveWriteFailures = 0
			}

			if inputBuffer.Write([]byte{b}) == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// writeUSB flushes outputBuffer. After repeated failures the host is
// assumed gone and pending data is dropped.
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	outputBuffer.Reset()
}
