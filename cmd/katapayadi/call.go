package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/achilleasa/katapayadi/client"
	"github.com/achilleasa/katapayadi/client/middleware/circuitbreaker"
	"github.com/achilleasa/katapayadi/client/middleware/weightedrouting"
	"github.com/achilleasa/katapayadi/encoding"
	"github.com/achilleasa/katapayadi/service"
	"github.com/spf13/cobra"
)

type callOptions struct {
	key       int
	transport string
	codec     string
	version   string
	timeout   time.Duration
}

func newCallCmd(a *app) *cobra.Command {
	var opts callOptions

	cmd := &cobra.Command{
		Use:   "call encode|decode|candidates ARG",
		Short: "Invoke an endpoint of a running katapayadi service",
		Long: `Call sends a request to a katapayadi service and prints the response as
JSON. Requests go through a circuit breaker configured under
client/circuitbreaker and the weighted router configured under
weighted_router/katapayadi.`,
		Example: `  katapayadi call encode कखग
  katapayadi call --transport amqp --codec msgpack candidates 123`,
		ValidArgs: []string{"encode", "decode", "candidates"},
		Args:      cobra.MatchAll(cobra.ExactArgs(2), validEndpoint),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.key = a.resolveKey(cmd, opts.key)
			return a.call(cmd, args[0], args[1], opts)
		},
	}

	cmd.Flags().IntVarP(&opts.key, "key", "k", 0, "digit shift (defaults to transcoder/key)")
	cmd.Flags().StringVarP(&opts.transport, "transport", "t", "http", "transport to send the request with (http, amqp, memory)")
	cmd.Flags().StringVar(&opts.codec, "codec", "json", fmt.Sprintf("payload codec %v", encoding.Names()))
	cmd.Flags().StringVar(&opts.version, "version", "", "service version to target")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "request timeout")
	return cmd
}

// validEndpoint checks the first argument only; the second one is free text.
func validEndpoint(cmd *cobra.Command, args []string) error {
	for _, name := range cmd.ValidArgs {
		if args[0] == name {
			return nil
		}
	}
	return fmt.Errorf("invalid endpoint %q for %q", args[0], cmd.CommandPath())
}

func (a *app) call(cmd *cobra.Command, endpoint, arg string, opts callOptions) error {
	tr, err := a.newTransport(opts.transport, "")
	if err != nil {
		return err
	}
	codec, err := encoding.Lookup(opts.codec)
	if err != nil {
		return err
	}

	breakerCfg := circuitbreaker.NewDynamicConfig(a.store, "client/circuitbreaker")
	defer breakerCfg.Close()

	c, err := service.NewClient(
		client.WithTransport(tr),
		client.WithCodec(codec),
		client.WithVersion(opts.version),
		client.WithLogger(a.logger),
		client.WithMiddleware(
			circuitbreaker.Factory(breakerCfg),
			weightedrouting.Factory(a.store),
		),
	)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	var res interface{}
	switch endpoint {
	case "encode":
		res, err = c.Encode(ctx, arg, opts.key)
	case "decode":
		res, err = c.Decode(ctx, arg, opts.key)
	case "candidates":
		var candidates [][]string
		candidates, err = c.Candidates(ctx, arg, opts.key)
		res = &service.CandidatesResponse{Candidates: candidates}
	}
	if err != nil {
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
