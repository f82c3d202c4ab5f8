package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tanq16/mediarelay/internal/output"
)

func newGetURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "get-url [URL] [--server SERVER]",
		Short:   "Ask the relay for the direct media URL of a page",
		Aliases: []string{"url"},
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			c := newRelayClient()
			output.PrintPending("Extracting direct link...")
			direct, err := c.GetURL(context.Background(), args[0])
			if err != nil {
				fail("get-url", err)
			}
			output.PrintSuccess("Direct link ready")
			fmt.Println(direct)
		},
	}
	addClientFlags(cmd)
	return cmd
}
