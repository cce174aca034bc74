package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/templates"
)

type ServeOptions struct {
	*ConfigFlags

	Port int

	iooption.IOStreams
}

var (
	serveLong = templates.LongDesc(`Start the upload relay HTTP server.`)

	serveExample = templates.Examples(`
		# Start on $PORT (default 8080)
		relay serve

		# Start on a custom port, storing files on local disk
		relay serve --port 9090 --backend local`)
)

func NewServeOptions(flags *ConfigFlags, streams iooption.IOStreams) *ServeOptions {
	return &ServeOptions{
		ConfigFlags: flags,
		IOStreams:   streams,
	}
}

func NewServeCommand(o *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the upload relay HTTP server",
		Long:    serveLong,
		Example: serveExample,
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

	cmd.Flags().IntVarP(&o.Port, "port", "p", 0, "Port to listen on (default: $PORT)")

	return cmd
}

func (o *ServeOptions) Complete(cmd *cobra.Command, args []string) error {
	return nil
}

func (o *ServeOptions) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("invalid port %d", o.Port)
	}
	return nil
}

func (o *ServeOptions) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := o.buildApp(ctx, o.ErrOut, nil)
	if err != nil {
		return fmt.Errorf("failed to initialise relay: %w", err)
	}
	if o.Port != 0 {
		a.Config.Port = o.Port
	}

	fmt.Fprintf(o.Out, "Starting upload relay on %s (backend: %s)\n", a.Config.Addr(), a.Config.Backend)
	return a.Server.Serve(ctx, a.Config.Addr())
}
