// silasm assembles SIL source into .silc bytecode and disassembles it back.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/sil/manifest"
	"github.com/chazu/sil/pkg/bytecode"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("sil.asm")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "silasm: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	disassemble bool
	output      string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "silasm [flags] [input]",
		Short: "Assemble SIL source to .silc bytecode",
		Long: `Assembles a .sil source file to .silc bytecode. With -d, disassembles a
.silc file back to source on standard output (or -o).

Without an input file the entry program of the nearest sil.toml is used.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			verbosity := 0
			if opts.verbose {
				verbosity = 1
			}
			commonlog.Configure(verbosity, nil)
			return run(cmd.OutOrStdout(), args, opts)
		},
	}
	cmd.Flags().BoolVarP(&opts.disassemble, "disassemble", "d", false, "disassemble a .silc file")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output path (\"-\" for standard output)")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print the symbol table")
	return cmd
}

func run(stdout io.Writer, args []string, opts options) error {
	input, defaultOut, err := resolveInput(args, opts)
	if err != nil {
		return err
	}
	output := opts.output
	if output == "" {
		output = defaultOut
	}

	var file *bytecode.SilcFile
	var data []byte
	if opts.disassemble {
		file, err = bytecode.ReadFile(input)
		if err != nil {
			return err
		}
		data = []byte(bytecode.DisassembleFile(file))
	} else {
		src, err := os.ReadFile(input)
		if err != nil {
			return bytecode.IOError(input, err)
		}
		file, err = bytecode.Assemble(string(src))
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		data, err = file.Serialize()
		if err != nil {
			return err
		}
	}

	if output == "-" {
		if _, err := stdout.Write(data); err != nil {
			return bytecode.IOError("stdout", err)
		}
	} else {
		if dir := filepath.Dir(output); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return bytecode.IOError(dir, err)
			}
		}
		if err := os.WriteFile(output, data, 0644); err != nil {
			return bytecode.IOError(output, err)
		}
		log.Infof("wrote %s (%d bytes)", output, len(data))
	}

	if opts.verbose {
		printSymbols(stdout, file)
	}
	return nil
}

// resolveInput picks the input file and the default output path.
func resolveInput(args []string, opts options) (string, string, error) {
	if len(args) == 1 {
		input := args[0]
		if opts.disassemble {
			return input, "-", nil
		}
		return input, strings.TrimSuffix(input, filepath.Ext(input)) + ".silc", nil
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		return "", "", err
	}
	if m == nil || m.Project.Entry == "" {
		return "", "", fmt.Errorf("no input file and no %s entry", manifest.FileName)
	}
	if opts.disassemble {
		return m.OutputPath(), "-", nil
	}
	return m.EntryPath(), m.OutputPath(), nil
}

func printSymbols(w io.Writer, f *bytecode.SilcFile) {
	fmt.Fprintf(w, "%s, %d code bytes, %d data bytes\n", f.Mode, len(f.Code), len(f.Data))
	for _, s := range f.SortedSymbols() {
		fmt.Fprintf(w, "  %04X  %s\n", s.Addr, s.Name)
	}
}
