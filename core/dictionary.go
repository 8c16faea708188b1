package core

import "sync"

// Version is reported in the dictionary and by the host tool.
const Version = "gopixel-0.1.0"

// Dictionary is the JSON data dictionary the host fetches with identify.
// It is built by hand because TinyGo's encoding/json leans on reflection
// that the firmware cannot afford.
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]string
	enumerations  map[string][]string
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cached        []byte
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a dictionary describing cmdReg
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]string),
		enumerations:  make(map[string][]string),
		commandReg:    cmdReg,
		version:       Version,
		buildVersions: "go-tinygo",
	}
}

// RegisterConstant registers a constant in the global dictionary
func RegisterConstant(name string, value uint32) {
	globalDictionary.AddConstant(name, utoa(value))
}

// RegisterStringConstant registers a string constant in the global dictionary
func RegisterStringConstant(name, value string) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration registers an enumeration in the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

// AddConstant adds a constant and drops any cached encoding
func (d *Dictionary) AddConstant(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = value
	d.cached = nil
}

// AddEnumeration adds an enumeration; index i of values encodes as i.
// Empty strings leave a gap in the numbering.
func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// TinyGo's GC may reclaim the caller's backing array.
	vs := make([]string, len(values))
	copy(vs, values)
	d.enumerations[name] = vs
	d.cached = nil
}

// SetBuildVersions sets the build versions string
func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cached = nil
}

// BuildDictionary encodes and caches the dictionary. Call it once after all
// commands are registered.
func (d *Dictionary) BuildDictionary() {
	// Snapshot the registry before taking our own lock.
	msgs := d.commandReg.Messages()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.cached = d.encodeLocked(msgs)
	DebugPrintln("[dict] built " + itoa(len(d.cached)) + " bytes")
}

// Generate returns the encoded dictionary, building it if needed
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cached
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}
	d.BuildDictionary()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

func (d *Dictionary) encodeLocked(msgs []*Command) []byte {
	out := make([]byte, 0, 1024)
	out = append(out, `{"version":`...)
	out = appendJSONString(out, d.version)
	out = append(out, `,"build_versions":`...)
	out = appendJSONString(out, d.buildVersions)

	out = append(out, `,"config":{`...)
	for i, name := range sortedKeys(d.constants) {
		if i > 0 {
			out = append(out, ',')
		}
		out = appendJSONString(out, name)
		out = append(out, ':')
		out = appendJSONString(out, d.constants[name])
	}

	// msgs is already in ID order.
	out = append(out, `},"commands":{`...)
	out = appendMessages(out, msgs, false)
	out = append(out, `},"responses":{`...)
	out = appendMessages(out, msgs, true)
	out = append(out, '}')

	if len(d.enumerations) > 0 {
		out = append(out, `,"enumerations":{`...)
		names := make([]string, 0, len(d.enumerations))
		for name := range d.enumerations {
			names = append(names, name)
		}
		sortStrings(names)
		for i, name := range names {
			if i > 0 {
				out = append(out, ',')
			}
			out = appendJSONString(out, name)
			out = append(out, ":{"...)
			first := true
			for idx, v := range d.enumerations[name] {
				if v == "" {
					continue
				}
				if !first {
					out = append(out, ',')
				}
				out = appendJSONString(out, v)
				out = append(out, ':')
				out = append(out, itoa(idx)...)
				first = false
			}
			out = append(out, '}')
		}
		out = append(out, '}')
	}
	return append(out, '}')
}

func appendMessages(out []byte, msgs []*Command, responses bool) []byte {
	first := true
	for _, m := range msgs {
		if m.IsResponse() != responses {
			continue
		}
		if !first {
			out = append(out, ',')
		}
		out = appendJSONString(out, m.Signature())
		out = append(out, ':')
		out = append(out, itoa(int(m.ID))...)
		first = false
	}
	return out
}

func appendJSONString(out []byte, s string) []byte {
	out = append(out, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			out = append(out, '\\')
		}
		out = append(out, c)
	}
	return append(out, '"')
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

// sortStrings is an insertion sort; the lists here hold a handful of names.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// GetChunk returns a copy of up to count bytes starting at offset
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := offset + uint32(count)
	if end > uint32(len(data)) {
		end = uint32(len(data))
	}
	// Copy: the chunk may still be queued for USB after a rebuild.
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the global dictionary instance
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
