package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/mediarelay/internal/client"
	"github.com/tanq16/mediarelay/internal/output"
	"github.com/tanq16/mediarelay/internal/utils"
)

func newDownloadCmd() *cobra.Command {
	var outputDir string
	var referenceSize int64

	cmd := &cobra.Command{
		Use:     "download [URL] [--output-dir DIR] [--server SERVER]",
		Short:   "Have the relay fetch the media and save it locally",
		Aliases: []string{"dl"},
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			c := newRelayClient()
			progress := output.NewProgress(os.Stderr)
			consumer := &client.Consumer{
				ReferenceSize: referenceSize,
				OnProgress: func(t client.Transfer) {
					progress.Update(t.Received, t.Total, t.Percent)
				},
			}

			output.PrintPending("Preparing the file on the server...")
			payload, err := c.Download(context.Background(), args[0], consumer)
			progress.Done()
			if err != nil {
				fail("download", err)
			}
			output.PrintInfo(fmt.Sprintf("Received %s from the server, saving...", utils.FormatBytes(uint64(len(payload.Data)))))

			path, err := client.SavePayload(outputDir, payload)
			if err != nil {
				fail("save", err)
			}
			log.Debug().Str("op", "cmd/download").Str("path", path).Msg("Payload saved")
			output.PrintSuccess("Saved to " + path)
		},
	}

	addClientFlags(cmd)
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory to save the file in")
	cmd.Flags().Int64Var(&referenceSize, "reference-size", client.DefaultReferenceSize, "Assumed size in bytes for progress estimates when the server sends no length")
	return cmd
}
