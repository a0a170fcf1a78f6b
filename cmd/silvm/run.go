package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chazu/sil/manifest"
	"github.com/chazu/sil/pkg/bytecode"
	"github.com/chazu/sil/pkg/sil"
	"github.com/chazu/sil/vm"
	"github.com/chazu/sil/vm/dist"
	"github.com/spf13/cobra"
)

func runProgram(cmd *cobra.Command, args []string, opts runOptions) error {
	m, err := loadManifest(opts.manifestDir)
	if err != nil {
		return err
	}
	cfg, err := m.VMConfig()
	if err != nil {
		return err
	}
	if opts.mode != "" {
		if cfg.Mode, err = bytecode.ParseMode(opts.mode); err != nil {
			return err
		}
	}
	if opts.maxCycles > 0 {
		cfg.MaxCycles = opts.maxCycles
	}

	path := m.EntryPath()
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		return fmt.Errorf("no program given and no %s entry", manifest.FileName)
	}

	primary, err := newVM(path, cfg)
	if err != nil {
		return err
	}
	primary.Trace = opts.trace || m.Debug.Trace
	for _, bp := range append(append([]string(nil), m.Debug.Breakpoints...), opts.breakpoints...) {
		if err := setBreakpoint(primary, bp); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	peerPath := opts.peer
	if peerPath == "" && m.Entanglement.Enabled {
		peerPath = m.PeerPath()
	}

	var runErr error
	if peerPath == "" {
		runErr = runSolo(out, primary)
		report(out, "", primary)
	} else {
		peer, err := newVM(peerPath, cfg)
		if err != nil {
			return err
		}
		hub := dist.NewHub()
		pair, la, lb := hub.Pair(m.NodeID(), vm.NewNodeID())
		primary.Entangle(la)
		peer.Entangle(lb)
		log.Infof("entangled %s with %s as %s", path, peerPath, pair)

		runErr = runLockstep(out, primary, peer)
		report(out, filepath.Base(path), primary)
		report(out, filepath.Base(peerPath), peer)
	}

	if opts.dump != "" {
		data, err := dist.MarshalSnapshot(primary.Snapshot())
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.dump, data, 0644); err != nil {
			return bytecode.IOError(opts.dump, err)
		}
	}
	return runErr
}

func loadManifest(dir string) (*manifest.Manifest, error) {
	if dir != "" {
		return manifest.Load(dir)
	}
	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = &manifest.Manifest{}
	}
	return m, nil
}

// loadProgram reads a .silc file, or assembles anything else as source.
func loadProgram(path string) (*bytecode.SilcFile, error) {
	if strings.EqualFold(filepath.Ext(path), ".silc") {
		return bytecode.ReadFile(path)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, bytecode.IOError(path, err)
	}
	f, err := bytecode.Assemble(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

func newVM(path string, cfg vm.Config) (*vm.Vsp, error) {
	f, err := loadProgram(path)
	if err != nil {
		return nil, err
	}
	v := vm.New(cfg)
	if err := v.Load(f, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// setBreakpoint accepts a symbol name or a numeric code address.
func setBreakpoint(v *vm.Vsp, target string) error {
	if n, err := strconv.ParseUint(target, 0, 32); err == nil {
		return v.SetBreakpoint(uint32(n))
	}
	return v.SetBreakpointAt(target)
}

// runSolo runs to completion, reporting and continuing past breakpoints.
func runSolo(out io.Writer, v *vm.Vsp) error {
	for {
		res, err := v.Run()
		if err != nil {
			return err
		}
		if res.Event == nil {
			return nil
		}
		fmt.Fprintf(out, "%s\n", res.Event)
	}
}

// runLockstep alternates single steps between the two VMs until both stop.
// The first fault is returned after both have stopped.
func runLockstep(out io.Writer, vms ...*vm.Vsp) error {
	var first error
	for {
		active := false
		for _, v := range vms {
			if st := v.State(); st == vm.Halted || st == vm.Faulted {
				continue
			}
			active = true
			ev, err := v.Step()
			if err != nil && first == nil {
				first = err
			}
			if ev != nil {
				fmt.Fprintf(out, "%s\n", ev)
			}
		}
		if !active {
			return first
		}
	}
}

func report(out io.Writer, name string, v *vm.Vsp) {
	if name != "" {
		fmt.Fprintf(out, "[%s]\n", name)
	}
	fmt.Fprintf(out, "state:  %s\n", v.State())
	fmt.Fprintf(out, "cycles: %d\n", v.Cycles())
	fmt.Fprintf(out, "pc:     0x%04X\n", v.PC())
	if f := v.Fault(); f != nil {
		fmt.Fprintf(out, "fault:  %s\n", f)
	}
	for i, r := range v.Registers() {
		if r != sil.Null {
			fmt.Fprintf(out, "r%-2d     %s\n", i, r)
		}
	}
	if s := v.SilState(); s != sil.Vacuum() {
		fmt.Fprintf(out, "state vector: %s\n", s)
	}
}
