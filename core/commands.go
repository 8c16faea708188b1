package core

import (
	"sync/atomic"

	"gopixel/protocol"
)

// FirmwareState holds the global firmware state
type FirmwareState struct {
	configCRC  uint32 // atomic
	isShutdown uint32 // atomic bool
}

var globalState = &FirmwareState{}

// InitCoreCommands registers the protocol-level commands.
// identify_response and identify must be IDs 0 and 1: hosts bootstrap with
// a hardcoded dictionary containing only those two.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify)

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("config_reset", "", handleConfigReset)
	RegisterCommand("finalize_config", "crc=%u", handleFinalizeConfig)
	RegisterCommand("allocate_oids", "count=%c", handleAllocateOids)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("reset", "", handleReset)

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_config=%c crc=%u is_shutdown=%c")
	RegisterResponse("shutdown", "clock=%u")
}

// handleIdentify returns chunks of the data dictionary
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetUptime(data *[]byte) error {
	uptime := GetUptime()
	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(uptime>>32))
		protocol.EncodeVLQUint(output, uint32(uptime))
	})
	return nil
}

func handleGetClock(data *[]byte) error {
	clock := GetTime()
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

func handleGetConfig(data *[]byte) error {
	crc := atomic.LoadUint32(&globalState.configCRC)
	SendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, boolToUint(crc != 0))
		protocol.EncodeVLQUint(output, crc)
		protocol.EncodeVLQUint(output, boolToUint(IsShutdown()))
	})
	return nil
}

// handleConfigReset forgets the configuration, including every strip, and
// leaves the shutdown state.
func handleConfigReset(data *[]byte) error {
	ResetStrips()
	ResetFirmwareState()
	return nil
}

func handleFinalizeConfig(data *[]byte) error {
	crc, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	atomic.StoreUint32(&globalState.configCRC, crc)
	return nil
}

// handleAllocateOids is accepted for host compatibility; strips are stored
// in a map, so there is nothing to preallocate.
func handleAllocateOids(data *[]byte) error {
	_, err := protocol.DecodeVLQUint(data)
	return err
}

func handleEmergencyStop(data *[]byte) error {
	TryShutdown("emergency stop")
	return nil
}

// TryShutdown enters the shutdown state: every strip line is driven low and
// further sends are refused until the host resets the firmware state.
func TryShutdown(reason string) {
	if atomic.SwapUint32(&globalState.isShutdown, 1) != 0 {
		return
	}
	ShutdownAllStrips()
	DebugPrintln("[shutdown] " + reason)
	if cycleClock != nil {
		clock := GetTime()
		SendResponse("shutdown", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, clock)
		})
	}
}

// IsShutdown returns true if the firmware is in shutdown state
func IsShutdown() bool {
	return atomic.LoadUint32(&globalState.isShutdown) != 0
}

// ResetFirmwareState resets the firmware state for reconnection
func ResetFirmwareState() {
	atomic.StoreUint32(&globalState.configCRC, 0)
	atomic.StoreUint32(&globalState.isShutdown, 0)
}

var (
	globalTransport *protocol.Transport

	globalResetHandler func()

	// resetPending defers the reset until the ACK has gone out.
	resetPending uint32
)

// SetGlobalTransport sets the transport responses are sent through
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// SendResponse encodes a registered response on the global transport.
// It is a no-op until a transport has been set.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		panic("Response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

// SetResetHandler sets the platform-specific reset handler
func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

func handleReset(_ *[]byte) error {
	atomic.StoreUint32(&resetPending, 1)
	return nil
}

// CheckPendingReset runs the reset handler if a reset was requested.
// Call it from the main loop after pending output has been flushed.
func CheckPendingReset() {
	if atomic.LoadUint32(&resetPending) != 0 && globalResetHandler != nil {
		globalResetHandler()
	}
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
