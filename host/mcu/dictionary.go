package mcu

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Message is one command or response from the dictionary.
type Message struct {
	ID     uint16
	Name   string
	Format string
}

// Dictionary is the firmware's self-description, fetched with identify.
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commands  map[string]Message
	responses map[string]Message
}

// ParseDictionary decodes the JSON dictionary and indexes messages by name.
func ParseDictionary(data []byte) (*Dictionary, error) {
	d := &Dictionary{}
	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	d.commands = indexMessages(d.Commands)
	d.responses = indexMessages(d.Responses)
	return d, nil
}

func indexMessages(sigs map[string]int) map[string]Message {
	out := make(map[string]Message, len(sigs))
	for sig, id := range sigs {
		name, format, _ := strings.Cut(sig, " ")
		out[name] = Message{ID: uint16(id), Name: name, Format: format}
	}
	return out
}

// Command looks up a command by name.
func (d *Dictionary) Command(name string) (Message, bool) {
	m, ok := d.commands[name]
	return m, ok
}

// Response looks up a response by name.
func (d *Dictionary) Response(name string) (Message, bool) {
	m, ok := d.responses[name]
	return m, ok
}

// Constant returns a config constant as an integer.
func (d *Dictionary) Constant(name string) (uint32, error) {
	s, ok := d.Config[name]
	if !ok {
		return 0, fmt.Errorf("dictionary has no constant %s", name)
	}
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("constant %s: %w", name, err)
	}
	return uint32(v), nil
}

// Enum resolves value in enumeration name. A plain number is accepted as
// is, so pins may be given as "18" or "gpio18".
func (d *Dictionary) Enum(name, value string) (uint32, error) {
	if v, ok := d.Enumerations[name][value]; ok {
		return uint32(v), nil
	}
	if v, err := strconv.ParseUint(value, 10, 32); err == nil {
		return uint32(v), nil
	}
	return 0, fmt.Errorf("unknown %s %q", name, value)
}
