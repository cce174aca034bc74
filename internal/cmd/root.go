package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	cliflag "github.com/tomasbasham/cli-runtime/flag"
	"github.com/tomasbasham/cli-runtime/iooption"
	"github.com/tomasbasham/cli-runtime/printer"
	"github.com/tomasbasham/cli-runtime/templates"

	"github.com/gyanasetu/upload-relay/internal/app"
	"github.com/gyanasetu/upload-relay/internal/config"
	"github.com/gyanasetu/upload-relay/internal/logging"
)

var (
	rootLong = templates.LongDesc(`
		Relay browser uploads to Google Drive (or another object store) and
		hand back public links.

		Configuration is read from the environment and from an optional .env
		file in the working directory. Flags override the environment.`)

	rootExamples = templates.Examples(`
		# Run the HTTP relay
		relay serve

		# Push a local file through the relay and print its links
		relay upload ./notes.pdf

		# Describe and delete an uploaded file
		relay info 1a2b3c
		relay delete 1a2b3c`)

	// Injected at build time using ldflags.
	version = ""
	commit  = ""
)

// ConfigFlags override values read from the environment.
type ConfigFlags struct {
	Backend string
}

// RelayOptions defines the options for the `relay` command.
type RelayOptions struct {
	ConfigFlags

	iooption.IOStreams
}

// NewRelayOptions provides an initialised RelayOptions instance.
func NewRelayOptions(streams iooption.IOStreams) *RelayOptions {
	return &RelayOptions{
		IOStreams: streams,
	}
}

// NewRootCommand creates the `relay` command with default arguments.
func NewRootCommand() *cobra.Command {
	options := NewRelayOptions(iooption.IOStreams{
		In:     os.Stdin,
		Out:    os.Stdout,
		ErrOut: os.Stderr,
	})

	return NewRootCommandWithArgs(options)
}

// NewRootCommandWithArgs creates the `relay` command and its nested
// children.
func NewRootCommandWithArgs(o *RelayOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "relay [command]",
		Version:               versionInfo(),
		DisableFlagsInUseLine: true,
		Short:                 "GyanaSetu upload relay",
		Long:                  rootLong,
		Example:               rootExamples,
		SilenceErrors:         true,
		SilenceUsage:          true,
	}

	printerOpts := printer.WarningPrinterOptions{Color: true}
	printer := printer.NewWarningPrinter(o.ErrOut, printerOpts)
	cmd.SetGlobalNormalizationFunc(cliflag.WarnWordSepNormalizeFunc(printer))

	cmd.PersistentFlags().StringVarP(&o.Backend, "backend", "b", "", "Storage backend: drive, gcs or local (default: $STORAGE_BACKEND)")

	cmd.AddCommand(NewServeCommand(NewServeOptions(&o.ConfigFlags, o.IOStreams)))
	cmd.AddCommand(NewUploadCommand(NewUploadOptions(&o.ConfigFlags, o.IOStreams)))
	cmd.AddCommand(NewDeleteCommand(NewDeleteOptions(&o.ConfigFlags, o.IOStreams)))
	cmd.AddCommand(NewInfoCommand(NewInfoOptions(&o.ConfigFlags, o.IOStreams)))

	// The globlal normalisation function ensures that all flags specified meet
	// the desired format, changing users' input if necessary.
	cmd.SetGlobalNormalizationFunc(cliflag.WordSepNormalizeFunc())

	return cmd
}

// Load reads the configuration, applies flag overrides and initialises
// logging on errOut.
func (f *ConfigFlags) Load(errOut io.Writer) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.Backend != "" {
		cfg.Backend = f.Backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	logging.Init(logging.Options{
		Level:     cfg.LogLevel,
		AddSource: cfg.LogAddSource,
		Output:    errOut,
	})
	return cfg, nil
}

// buildApp loads the configuration and assembles a relay. One-shot commands
// pass a private registry since nothing scrapes them.
func (f *ConfigFlags) buildApp(ctx context.Context, errOut io.Writer, reg prometheus.Registerer) (*app.App, error) {
	cfg, err := f.Load(errOut)
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, reg)
}

func printJSON(out io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func versionInfo() string {
	if version == "" {
		return ""
	}
	return fmt.Sprintf("%s (commit: %s)", version, commit)
}
