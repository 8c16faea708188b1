package core

import (
	"errors"
	"sync"
)

// CommandHandler decodes its own arguments from data and acts on them.
// A nil handler marks a response (MCU -> host) message.
type CommandHandler func(data *[]byte) error

// Command is one entry of the message dictionary
type Command struct {
	ID      uint16
	Name    string
	Format  string // argument format, e.g. "oid=%c pin=%u"
	Handler CommandHandler
}

// Signature returns "name format" as it appears in the dictionary.
func (c *Command) Signature() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// IsResponse reports whether the message flows MCU -> host.
func (c *Command) IsResponse() bool {
	return c.Handler == nil
}

// CommandRegistry assigns sequential IDs to commands and responses
type CommandRegistry struct {
	mu       sync.RWMutex
	commands []*Command
	nameToID map[string]uint16
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates a new command registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		nameToID: make(map[string]uint16),
	}
}

// RegisterCommand registers a command handler with the global registry
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse registers a response message (MCU -> Host)
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds a message and returns its ID. Registering an existing
// name returns the original ID unchanged.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, exists := r.nameToID[name]; exists {
		return id
	}

	id := uint16(len(r.commands))
	r.commands = append(r.commands, &Command{
		ID:      id,
		Name:    name,
		Format:  format,
		Handler: handler,
	})
	r.nameToID[name] = id
	return id
}

// GetCommand retrieves a command by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.commands) {
		return nil, false
	}
	return r.commands[id], true
}

// GetCommandByName retrieves a command by name
func (r *CommandRegistry) GetCommandByName(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.nameToID[name]
	if !ok {
		return nil, false
	}
	return r.commands[id], true
}

// Count returns the number of registered messages
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// Dispatch calls the handler registered for cmdID
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok {
		return errors.New("unknown command ID: " + itoa(int(cmdID)))
	}
	if cmd.Handler == nil {
		return errors.New("not a command: " + cmd.Name)
	}
	return cmd.Handler(data)
}

// Messages returns a snapshot of all registered messages in ID order.
func (r *CommandRegistry) Messages() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Command, len(r.commands))
	copy(out, r.commands)
	return out
}

// DispatchCommand is a convenience function using the global registry
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

// GetGlobalRegistry returns the global command registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
