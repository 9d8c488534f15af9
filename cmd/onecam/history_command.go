package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"onecam/internal/domain"
	"onecam/internal/engine"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <prompt_id>",
		Short: "Print the images an engine job produced",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, _, _, err := engineParts(cfg, ctx.logger(cfg))
			if err != nil {
				return err
			}
			handle := domain.JobHandle{PromptID: args[0]}
			record, err := client.History(cmd.Context(), handle)
			if err != nil {
				return err
			}
			files, ok := engine.OutputImages(record, handle)
			if !ok {
				return fmt.Errorf("%w for job %s", domain.ErrNoImages, handle.PromptID)
			}
			for _, f := range files {
				fmt.Fprintln(cmd.OutOrStdout(), f)
			}
			return nil
		},
	}
}
