package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"
)

type DeleteOptions struct {
	*ConfigFlags

	FileID string

	iooption.IOStreams
}

var (
	deleteLong = templates.LongDesc(`
		Delete an uploaded file. Deleting a file that no longer exists
		succeeds.`)

	deleteExample = templates.Examples(`
		# Delete a file by id
		relay delete 1a2b3c`)
)

func NewDeleteOptions(flags *ConfigFlags, streams iooption.IOStreams) *DeleteOptions {
	return &DeleteOptions{
		ConfigFlags: flags,
		IOStreams:   streams,
	}
}

func NewDeleteCommand(o *DeleteOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "delete FILE_ID",
		DisableFlagsInUseLine: true,
		Short:                 "Delete an uploaded file",
		Long:                  deleteLong,
		Example:               deleteExample,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(); err != nil {
				return err
			}
			if err := o.Run(); err != nil {
				return err
			}
			return nil
		},
	}

	return cmd
}

func (o *DeleteOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("FILE_ID is required")
	}
	o.FileID = args[0]
	return nil
}

func (o *DeleteOptions) Validate() error {
	if len(o.FileID) == 0 {
		return fmt.Errorf("FILE_ID is required")
	}
	return nil
}

func (o *DeleteOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := o.buildApp(ctx, o.ErrOut, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to initialise relay: %w", err)
	}

	if err := a.Relay.Delete(ctx, o.FileID); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}

	return printJSON(o.Out, map[string]any{"success": true, "message": "File deleted"})
}
