package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/achilleasa/katapayadi/encoding"
	"github.com/achilleasa/katapayadi/server"
	"github.com/achilleasa/katapayadi/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "github.com/achilleasa/katapayadi/encoding/gob"
	_ "github.com/achilleasa/katapayadi/encoding/json"
	_ "github.com/achilleasa/katapayadi/encoding/msgpack"
)

type serveOptions struct {
	transports []string
	codec      string
	version    string
	listen     string
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Expose the transcoder endpoints over one or more transports",
		Example: `  katapayadi serve --transport http --listen 127.0.0.1:8080
  katapayadi serve --transport http,amqp --codec msgpack`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx, opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.transports, "transport", "t", []string{"http"}, "transports to serve on (http, amqp, memory)")
	cmd.Flags().StringVar(&opts.codec, "codec", "json", fmt.Sprintf("payload codec %v", encoding.Names()))
	cmd.Flags().StringVar(&opts.version, "version", "", "service version to bind the endpoints to")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "HTTP listen address; overrides the transport/http configuration")
	return cmd
}

// serve runs one server per transport until ctx is done or one of the
// servers fails.
func (a *app) serve(ctx context.Context, opts serveOptions) error {
	if len(opts.transports) == 0 {
		return fmt.Errorf("at least one transport is required")
	}

	codec, err := encoding.Lookup(opts.codec)
	if err != nil {
		return err
	}

	svc := service.New(service.NewTranscoder(a.store), service.WithStore(a.store), service.WithLogger(a.logger))
	defer svc.Close()

	servers := make([]*server.Server, 0, len(opts.transports))
	for _, name := range opts.transports {
		tr, err := a.newTransport(name, opts.listen)
		if err != nil {
			return err
		}

		srv, err := server.New(service.Name,
			server.WithTransport(tr),
			server.WithCodec(codec),
			server.WithVersion(opts.version),
			server.WithLogger(a.logger.With(zap.String("transport", name))),
		)
		if err != nil {
			return err
		}
		if err = svc.Register(srv); err != nil {
			return err
		}
		servers = append(servers, srv)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error { return srv.Serve(gctx) })
	}

	err = g.Wait()
	for _, srv := range servers {
		srv.Close()
	}
	return err
}
