package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/gyanasetu/upload-relay/internal/domain"
	"github.com/gyanasetu/upload-relay/internal/relay"
)

type UploadOptions struct {
	*ConfigFlags

	Path     string
	Name     string
	MimeType string

	iooption.IOStreams
}

var (
	uploadLong = templates.LongDesc(`
		Upload a local file through the relay and print its public links.

		The file goes through the same spool, upload and share steps as an
		HTTP upload, including the size limit.`)

	uploadExample = templates.Examples(`
		# Upload a file under its own name
		relay upload ./lecture-01.pdf

		# Upload under a different name and type
		relay upload ./scan.bin --name chapter-2.pdf --mime-type application/pdf`)
)

func NewUploadOptions(flags *ConfigFlags, streams iooption.IOStreams) *UploadOptions {
	return &UploadOptions{
		ConfigFlags: flags,
		IOStreams:   streams,
	}
}

func NewUploadCommand(o *UploadOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "upload FILE",
		DisableFlagsInUseLine: true,
		Short:                 "Upload a local file and print its links",
		Long:                  uploadLong,
		Example:               uploadExample,
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

	cmd.Flags().StringVarP(&o.Name, "name", "n", "", "File name to store (default: base name of FILE)")
	cmd.Flags().StringVarP(&o.MimeType, "mime-type", "m", "", "MIME type to store (default: detected from content)")

	return cmd
}

func (o *UploadOptions) Complete(cmd *cobra.Command, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("FILE is required")
	}
	o.Path = args[0]
	if o.Name == "" {
		o.Name = filepath.Base(o.Path)
	}
	return nil
}

func (o *UploadOptions) Validate() error {
	info, err := os.Stat(o.Path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", o.Path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", o.Path)
	}
	return nil
}

func (o *UploadOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := o.buildApp(ctx, o.ErrOut, prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("failed to initialise relay: %w", err)
	}

	f, err := os.Open(o.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", o.Path, err)
	}
	defer f.Close()

	res, err := a.Relay.UploadFile(ctx, relay.FilePart{
		Name:     o.Name,
		MimeType: o.MimeType,
		Content:  f,
	})
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}

	return printJSON(o.Out, uploadOutput{Success: true, UploadResult: res})
}

type uploadOutput struct {
	Success bool `json:"success"`
	*domain.UploadResult
}
