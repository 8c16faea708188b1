//go:build rp2350

package main

import "machine"

var debugUART *machine.UART

// InitDebugUART brings up UART1 on GPIO36 (TX) / GPIO37 (RX) at 115200 baud
// and routes core debug output to it.
func InitDebugUART() {
	uart := machine.UART1
	err := uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GPIO36,
		RX:       machine.GPIO37,
	})
	if err != nil {
		return
	}
	debugUART = uart
	DebugPrintln("=== gopixel rp2350 debug ===")
}

// DebugPrintln writes s and a CRLF. Never call it while a strip is being
// sent.
func DebugPrintln(s string) {
	if debugUART == nil {
		return
	}
	debugUART.Write([]byte(s))
	debugUART.Write([]byte("\r\n"))
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
