// silvm runs SIL programs on the VSP virtual machine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("sil.cli")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "silvm: %v\n", err)
		os.Exit(1)
	}
}

type runOptions struct {
	manifestDir string
	mode        string
	maxCycles   uint64
	trace       bool
	breakpoints []string
	peer        string
	dump        string
	verbosity   int
}

func newRootCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "silvm [flags] [program]",
		Short: "Run a SIL program (.sil or .silc)",
		Long: `Runs a SIL program under the configuration of the nearest sil.toml.
A .sil argument is assembled in memory. Without an argument the manifest's
entry program is run.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			commonlog.Configure(opts.verbosity, nil)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.manifestDir, "manifest", "m", "", "directory holding sil.toml (default: search upward from .)")
	f.StringVar(&opts.mode, "mode", "", "VM mode, e.g. SIL-32")
	f.Uint64Var(&opts.maxCycles, "max-cycles", 0, "cycle ceiling (0 keeps the configured value)")
	f.BoolVar(&opts.trace, "trace", false, "log every instruction at debug level")
	f.StringSliceVarP(&opts.breakpoints, "break", "b", nil, "report when reaching a symbol or address")
	f.StringVar(&opts.peer, "peer", "", "entangle with a second program run in lockstep")
	f.StringVar(&opts.dump, "dump", "", "write the final VM snapshot as CBOR to this path")
	cmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "increase log verbosity")

	cmd.AddCommand(newInitCmd())
	return cmd
}
