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

	"github.com/gyanasetu/upload-relay/internal/domain"
)

type InfoOptions struct {
	*ConfigFlags

	FileID string

	iooption.IOStreams
}

var (
	infoLong = templates.LongDesc(`Print the metadata of an uploaded file.`)

	infoExample = templates.Examples(`
		# Describe a file by id
		relay info 1a2b3c`)
)

func NewInfoOptions(flags *ConfigFlags, streams iooption.IOStreams) *InfoOptions {
	return &InfoOptions{
		ConfigFlags: flags,
		IOStreams:   streams,
	}
}

func NewInfoCommand(o *InfoOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "info FILE_ID",
		DisableFlagsInUseLine: true,
		Short:                 "Describe an uploaded file",
		Long:                  infoLong,
		Example:               infoExample,
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

func (o *InfoOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("FILE_ID is required")
	}
	o.FileID = args[0]
	return nil
}

func (o *InfoOptions) Validate() error {
	if len(o.FileID) == 0 {
		return fmt.Errorf("FILE_ID is required")
	}
	return nil
}

func (o *InfoOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := o.buildApp(ctx, o.ErrOut, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to initialise relay: %w", err)
	}

	obj, err := a.Relay.Info(ctx, o.FileID)
	if err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}

	return printJSON(o.Out, infoOutput{Success: true, File: obj})
}

type infoOutput struct {
	Success bool           `json:"success"`
	File    *domain.Object `json:"file"`
}
