package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/mediarelay/internal/output"
	"github.com/tanq16/mediarelay/internal/store"
	"github.com/tanq16/mediarelay/internal/utils"
)

func newCleanCmd() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean [TEMP_DIR]",
		Short: "Remove leftover transient workspaces",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := utils.DefaultTempDir
			if len(args) == 1 {
				dir = args[0]
			}
			st, err := store.New(dir)
			if err != nil {
				output.PrintError(err.Error())
				os.Exit(1)
			}
			removed, err := st.Sweep(olderThan)
			if err != nil {
				output.PrintError("Error cleaning up temporary files: " + err.Error())
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d leftover workspace(s) from %s", removed, st.Root()))
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", utils.DefaultSweepAfter, "Only remove workspaces older than this (0 removes all, including in-flight ones)")
	return cmd
}
