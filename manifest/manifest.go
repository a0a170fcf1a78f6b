// Package manifest handles sil.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/chazu/sil/pkg/bytecode"
	"github.com/chazu/sil/vm"
	"github.com/google/uuid"
)

// FileName is the manifest file looked up by Load and FindAndLoad.
const FileName = "sil.toml"

// Manifest represents a sil.toml project configuration.
type Manifest struct {
	Project      Project      `toml:"project"`
	VM           VMSection    `toml:"vm"`
	IO           IOSection    `toml:"io"`
	Debug        Debug        `toml:"debug"`
	Entanglement Entanglement `toml:"entanglement"`

	// Dir is the directory containing the sil.toml file (set at load time).
	Dir string `toml:"-"`

	meta *toml.MetaData
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Entry   string `toml:"entry"`  // .sil or .silc program run by default
	Output  string `toml:"output"` // .silc written by silasm
}

// VMSection sizes the machine. Unset keys keep vm.DefaultConfig values.
type VMSection struct {
	Mode      string `toml:"mode"`
	StackSize int    `toml:"stack-size"`
	HeapSize  int    `toml:"heap-size"`
	MaxCycles uint64 `toml:"max-cycles"`
	Backend   string `toml:"backend"`
}

// IOSection bounds the device id ranges.
type IOSection struct {
	Ports     int `toml:"ports"`
	Sensors   int `toml:"sensors"`
	Actuators int `toml:"actuators"`
	Syscalls  int `toml:"syscalls"`
}

// Debug configures tracing and initial breakpoints.
type Debug struct {
	Trace       bool     `toml:"trace"`
	Breakpoints []string `toml:"breakpoints"` // symbols or numeric addresses
}

// Entanglement pairs the entry program with a peer program.
type Entanglement struct {
	Enabled bool   `toml:"enabled"`
	Node    string `toml:"node"` // optional fixed node id
	Peer    string `toml:"peer"` // .sil or .silc program for the other node
}

// New returns a manifest for a fresh project with every [vm] and [io] key
// spelled out at its default.
func New(name string) *Manifest {
	cfg := vm.DefaultConfig()
	return &Manifest{
		Project: Project{Name: name, Version: "0.1.0", Entry: "main.sil"},
		VM: VMSection{
			Mode:      cfg.Mode.String(),
			StackSize: cfg.StackSize,
			HeapSize:  cfg.HeapSize,
			MaxCycles: cfg.MaxCycles,
			Backend:   cfg.Backend.String(),
		},
		IO: IOSection{
			Ports:     cfg.Ports,
			Sensors:   cfg.Sensors,
			Actuators: cfg.Actuators,
			Syscalls:  cfg.Syscalls,
		},
	}
}

// Parse decodes sil.toml content. Unknown keys are rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := m.validate(md); err != nil {
		return nil, err
	}
	m.meta = &md
	return &m, nil
}

func (m *Manifest) validate(md toml.MetaData) error {
	if m.VM.Mode != "" {
		if _, err := bytecode.ParseMode(m.VM.Mode); err != nil {
			return fmt.Errorf("vm.mode: %w", err)
		}
	}
	if m.VM.Backend != "" {
		if _, err := vm.ParseBackend(m.VM.Backend); err != nil {
			return fmt.Errorf("vm.backend: %w", err)
		}
	}
	if md.IsDefined("vm", "stack-size") && m.VM.StackSize <= 0 {
		return errors.New("vm.stack-size must be positive")
	}
	if md.IsDefined("vm", "heap-size") && m.VM.HeapSize <= 0 {
		return errors.New("vm.heap-size must be positive")
	}
	if m.Entanglement.Node != "" {
		if _, err := uuid.Parse(m.Entanglement.Node); err != nil {
			return fmt.Errorf("entanglement.node: %w", err)
		}
	}
	if m.Entanglement.Enabled && m.Entanglement.Peer == "" {
		return errors.New("entanglement.peer is required when entanglement is enabled")
	}
	return nil
}

// Load parses a sil.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a sil.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// VMConfig overlays the [vm] and [io] sections on vm.DefaultConfig.
func (m *Manifest) VMConfig() (vm.Config, error) {
	cfg := vm.DefaultConfig()
	if m.VM.Mode != "" {
		mode, err := bytecode.ParseMode(m.VM.Mode)
		if err != nil {
			return cfg, err
		}
		cfg.Mode = mode
	}
	if m.VM.Backend != "" {
		b, err := vm.ParseBackend(m.VM.Backend)
		if err != nil {
			return cfg, err
		}
		cfg.Backend = b
	}
	if m.defined(m.VM.StackSize != 0, "vm", "stack-size") {
		cfg.StackSize = m.VM.StackSize
	}
	if m.defined(m.VM.HeapSize != 0, "vm", "heap-size") {
		cfg.HeapSize = m.VM.HeapSize
	}
	if m.defined(m.VM.MaxCycles != 0, "vm", "max-cycles") {
		cfg.MaxCycles = m.VM.MaxCycles
	}
	for _, f := range []struct {
		key string
		dst *int
		src int
	}{
		{"ports", &cfg.Ports, m.IO.Ports},
		{"sensors", &cfg.Sensors, m.IO.Sensors},
		{"actuators", &cfg.Actuators, m.IO.Actuators},
		{"syscalls", &cfg.Syscalls, m.IO.Syscalls},
	} {
		if m.defined(f.src != 0, "io", f.key) {
			*f.dst = f.src
		}
	}
	return cfg, cfg.Validate()
}

// defined reports whether key was written in the parsed file, so an
// explicit 0 overrides the default. Manifests built in code fall back to
// nonZero.
func (m *Manifest) defined(nonZero bool, key ...string) bool {
	if m.meta != nil {
		return m.meta.IsDefined(key...)
	}
	return nonZero
}

// NodeID returns the configured node id, or a fresh random one.
func (m *Manifest) NodeID() vm.NodeID {
	if id, err := uuid.Parse(m.Entanglement.Node); err == nil {
		return id
	}
	return vm.NewNodeID()
}

// Path resolves p relative to the manifest directory.
func (m *Manifest) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// EntryPath returns the absolute path of the entry program, or "".
func (m *Manifest) EntryPath() string {
	return m.Path(m.Project.Entry)
}

// PeerPath returns the absolute path of the entanglement peer, or "".
func (m *Manifest) PeerPath() string {
	return m.Path(m.Entanglement.Peer)
}

// OutputPath returns where silasm writes the assembled entry program.
func (m *Manifest) OutputPath() string {
	if m.Project.Output != "" {
		return m.Path(m.Project.Output)
	}
	entry := m.EntryPath()
	if entry == "" {
		return ""
	}
	return strings.TrimSuffix(entry, filepath.Ext(entry)) + ".silc"
}

// WriteFile encodes m as TOML at path.
func (m *Manifest) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(m); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
