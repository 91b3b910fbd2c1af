// Package weightedrouting provides client middleware that picks the version
// of the remote service for each outgoing request using a table of weights.
//
// The weights live in the configuration store below
// "weighted_router/<service>", one key per version:
//
//	weighted_router/katapayadi/v1 -> "0.9"
//	weighted_router/katapayadi/v2 -> "0.1"
//
// routes 90% of the traffic to v1 and 10% to v2. Requests are left untouched
// while the table is empty, and a version explicitly set on the client wins
// over the table. This supports canary releases of a new transcoder version
// (http://martinfowler.com/bliki/CanaryRelease.html).
package weightedrouting

import (
	"context"
	"math/rand"
	"sort"
	"strconv"
	"sync"

	"github.com/achilleasa/katapayadi"
	"github.com/achilleasa/katapayadi/client"
	"github.com/achilleasa/katapayadi/config"
	"github.com/achilleasa/katapayadi/config/flag"
	"github.com/achilleasa/katapayadi/config/store"
	"github.com/achilleasa/katapayadi/transport"
	"go.uber.org/zap"
)

// ConfigPrefix is the configuration path below which the per-service weight
// tables are stored.
const ConfigPrefix = "weighted_router"

// Factory returns a middleware factory that creates a router for each client.
// The routers watch s, or the global config store if s is nil. Routers
// implement io.Closer; client.Client.Close closes them.
func Factory(s *store.Store) client.MiddlewareFactory {
	if s == nil {
		s = &config.Store
	}
	return func(serviceName string) client.Middleware {
		return newRouter(s, serviceName, rand.Float64)
	}
}

type route struct {
	version string
	weight  float64
}

type router struct {
	serviceName string
	weights     *flag.Map
	sample      func() float64

	mutex  sync.Mutex
	routes []route
}

func newRouter(s *store.Store, serviceName string, sample func() float64) *router {
	r := &router{
		serviceName: serviceName,
		weights:     flag.NewMap(s, ConfigPrefix+"/"+serviceName),
		sample:      sample,
	}
	r.routes = parseRoutes(r.weights.Get())
	return r
}

// parseRoutes converts a weight table into a list of routes sorted by
// version. Entries with invalid or non-positive weights are skipped.
func parseRoutes(cfg map[string]string) []route {
	routes := make([]route, 0, len(cfg))
	for version, weightStr := range cfg {
		weight, err := strconv.ParseFloat(weightStr, 64)
		if err != nil || weight <= 0 {
			katapayadi.Logger().Warn("ignoring weighted route",
				zap.String("version", version),
				zap.String("weight", weightStr),
			)
			continue
		}
		routes = append(routes, route{version: version, weight: weight})
	}

	sort.Slice(routes, func(i, j int) bool { return routes[i].version < routes[j].version })
	return routes
}

// Pre sets the receiver version of req.
func (r *router) Pre(ctx context.Context, req transport.Message) (context.Context, error) {
	if req.ReceiverVersion() != "" {
		return ctx, nil
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	select {
	case <-r.weights.ChangeChan():
		r.routes = parseRoutes(r.weights.Get())
	default:
	}

	if len(r.routes) == 0 {
		return ctx, nil
	}

	// Weights are normalized so they need not sum to 1.
	var total float64
	for _, rt := range r.routes {
		total += rt.weight
	}

	target := r.sample() * total
	var acc float64
	for _, rt := range r.routes {
		acc += rt.weight
		if target < acc {
			req.SetReceiverVersion(rt.version)
			return ctx, nil
		}
	}

	req.SetReceiverVersion(r.routes[len(r.routes)-1].version)
	return ctx, nil
}

// Post is a no-op.
func (r *router) Post(_ context.Context, _, _ transport.ImmutableMessage) {}

// Close stops watching the weight table. It is safe to call Close more than
// once.
func (r *router) Close() error {
	r.weights.CancelDynamicUpdates()
	return nil
}
