package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"onecam/internal/generation"
	"onecam/internal/infra"
)

func newSendCommand(ctx *commandContext) *cobra.Command {
	var req generation.Request
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Queue an image-to-image job and wait for its images",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cfg)
			client, poller, tmpl, err := engineParts(cfg, logger)
			if err != nil {
				return err
			}
			svc, err := generation.NewService(generation.Config{
				Template:  tmpl,
				Submitter: client,
				Awaiter:   poller,
				OutputDir: cfg.OutputDir,
				Logger:    infra.ComponentLogger(logger, "generation"),
			})
			if err != nil {
				return err
			}
			res, err := svc.Generate(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("send: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().StringVarP(&req.Prompt, "prompt", "p", "", "Prompt text")
	cmd.Flags().StringVarP(&req.ImagePath, "image", "i", "", "Uploaded image path or file name in the engine input folder")
	return cmd
}
