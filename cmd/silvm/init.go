package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chazu/sil/manifest"
	"github.com/spf13/cobra"
)

const starter = `; %s
        ldi  r0, 1:2
        ldi  r1, 2:3
        mul  r2, r0, r1
        halt
`

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <dir>",
		Short: "Create a sil.toml and a starter program",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			path := filepath.Join(dir, manifest.FileName)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}

			abs, err := filepath.Abs(dir)
			if err != nil {
				return err
			}
			m := manifest.New(filepath.Base(abs))
			if err := m.WriteFile(path); err != nil {
				return err
			}
			entry := filepath.Join(dir, m.Project.Entry)
			if _, err := os.Stat(entry); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(entry, []byte(fmt.Sprintf(starter, m.Project.Name)), 0644); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", path)
			return nil
		},
	}
}
