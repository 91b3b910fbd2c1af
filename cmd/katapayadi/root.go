package main

import (
	"fmt"
	"strings"

	"github.com/achilleasa/katapayadi"
	"github.com/achilleasa/katapayadi/config"
	"github.com/achilleasa/katapayadi/config/store"
	"github.com/achilleasa/katapayadi/transport"
	"github.com/achilleasa/katapayadi/transport/amqp"
	"github.com/achilleasa/katapayadi/transport/http"
	"github.com/achilleasa/katapayadi/transport/memory"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds the state shared by the commands of a single invocation.
type app struct {
	verbose    bool
	configFile string
	logger     *zap.Logger

	// store receives the --config file and backs every flag read by the
	// commands.
	store *store.Store

	// Used by --transport memory so that serve and call can share a
	// process.
	memory *memory.Transport
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "katapayadi",
		Short: "Katapayadi consonant to digit transcoder",
		Long: `katapayadi maps Sanskrit consonants to digits using the Katapayadi
system and back again.

Use encode, decode and table for local transcoding, serve to expose the
transcoder over HTTP or AMQP, and call to query a running service.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if a.configFile != "" {
				if err := config.LoadFileInto(a.store, a.configFile); err != nil {
					return fmt.Errorf("failed to load config file: %w", err)
				}
			}

			level := zapcore.InfoLevel
			if a.verbose {
				level = zapcore.DebugLevel
			}
			a.logger = zap.New(zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(cmd.ErrOrStderr()),
				level,
			))
			katapayadi.SetLogger(a.logger)
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML configuration file")

	root.AddCommand(
		newEncodeCmd(a),
		newDecodeCmd(a),
		newTableCmd(),
		newServeCmd(a),
		newCallCmd(a),
	)
	return root
}

// transportNames lists the values accepted by --transport.
var transportNames = []string{"http", "amqp", "memory"}

// newTransport creates the named transport. listen overrides the listen
// address of the HTTP transport.
func (a *app) newTransport(name, listen string) (transport.Provider, error) {
	switch strings.ToLower(name) {
	case "http":
		tr := http.New()
		tr.ListenAddress = listen
		return tr, nil
	case "amqp":
		return amqp.New(), nil
	case "memory":
		return a.memory, nil
	default:
		return nil, fmt.Errorf("unknown transport %q; expected one of %s", name, strings.Join(transportNames, ", "))
	}
}
