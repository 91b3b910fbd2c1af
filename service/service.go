// Package service exposes the Katapayadi transcoder as an RPC service with
// encode, decode and candidates endpoints.
package service

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/achilleasa/katapayadi"
	"github.com/achilleasa/katapayadi/config"
	"github.com/achilleasa/katapayadi/config/flag"
	"github.com/achilleasa/katapayadi/config/store"
	"github.com/achilleasa/katapayadi/server"
	"github.com/achilleasa/katapayadi/server/middleware/concurrency"
	"github.com/achilleasa/katapayadi/server/middleware/logging"
	"github.com/achilleasa/katapayadi/transcoder"
	"go.uber.org/zap"
)

// Name is the name the service is registered under.
const Name = "katapayadi"

// DefaultMaxInputLen is the input limit, in runes, used when the
// configuration does not provide a positive one.
const DefaultMaxInputLen = 4096

// ErrInputTooLong is returned for requests whose text or numbers exceed the
// configured input limit.
var ErrInputTooLong = errors.New("input too long")

// Option configures a Service.
type Option func(*Service)

// WithStore sets the configuration store the service reads its settings
// from. The global config store is used by default.
func WithStore(s *store.Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithMaxInputLen sets a fixed input limit, in runes, that overrides the
// service/maxinputlen configuration key. A zero limit selects
// DefaultMaxInputLen.
func WithMaxInputLen(n uint32) Option {
	return func(svc *Service) {
		f := flag.NewUint32(nil, "")
		f.Set(n)
		svc.maxInputLen = f
	}
}

// WithLogger sets the logger used by the request logging middleware.
func WithLogger(l *zap.Logger) Option {
	return func(svc *Service) { svc.logger = l }
}

// WithMiddleware appends extra middleware to every endpoint. They run after
// the logging and concurrency middleware.
func WithMiddleware(factories ...server.MiddlewareFactory) Option {
	return func(svc *Service) { svc.middleware = append(svc.middleware, factories...) }
}

// Service implements the endpoint handlers. It reads the following keys
// from its configuration store:
//   - transcoder/clusters: cluster matching when no transcoder is supplied
//   - service/maxinputlen: input limit in runes
//   - service/maxconcurrent, service/acquiretimeout: request concurrency
//
// Close must be called to stop watching the configuration store.
type Service struct {
	transcoder *transcoder.Transcoder
	store      *store.Store
	logger     *zap.Logger
	middleware []server.MiddlewareFactory

	maxInputLen *flag.Uint32
	limiterCfg  *concurrency.DynamicConfig
}

// New creates a service backed by t. If t is nil, a transcoder is created
// according to the transcoder/clusters configuration key.
func New(t *transcoder.Transcoder, opts ...Option) *Service {
	svc := &Service{transcoder: t}
	for _, opt := range opts {
		opt(svc)
	}

	if svc.store == nil {
		svc.store = &config.Store
	}
	if svc.logger == nil {
		svc.logger = katapayadi.Logger()
	}
	if svc.maxInputLen == nil {
		svc.maxInputLen = flag.NewUint32(svc.store, "service/maxinputlen")
	}
	if svc.transcoder == nil {
		svc.transcoder = NewTranscoder(svc.store)
	}
	svc.limiterCfg = concurrency.NewDynamicConfig(svc.store, "service")

	return svc
}

// NewTranscoder creates a transcoder configured by the transcoder/clusters
// key of s.
func NewTranscoder(s *store.Store) *transcoder.Transcoder {
	clusters := flag.NewBool(s, "transcoder/clusters")
	defer clusters.CancelDynamicUpdates()

	if clusters.HasValue() && clusters.Get() {
		return transcoder.New(transcoder.WithClusterMatching())
	}
	return transcoder.New()
}

// Close stops watching the configuration store.
func (svc *Service) Close() {
	svc.maxInputLen.CancelDynamicUpdates()
	svc.limiterCfg.Close()
}

// Endpoints returns the service endpoints. All endpoints share a single
// concurrency limiter and log every request.
func (svc *Service) Endpoints() []*server.Endpoint {
	middleware := append([]server.MiddlewareFactory{
		logging.Factory(logging.WithLogger(svc.logger)),
		concurrency.SingletonFactory(svc.limiterCfg),
	}, svc.middleware...)

	return []*server.Endpoint{
		{
			Name:        "encode",
			Description: "Encode converts the consonants of a text into Katapayadi digits shifted by a key.",
			Handler:     svc.Encode,
			Middleware:  middleware,
		},
		{
			Name:        "decode",
			Description: "Decode converts digits into the first consonant candidate of each digit after reversing a key shift.",
			Handler:     svc.Decode,
			Middleware:  middleware,
		},
		{
			Name:        "candidates",
			Description: "Candidates lists every consonant that each digit may stand for under a key.",
			Handler:     svc.Candidates,
			Middleware:  middleware,
		},
	}
}

// Register adds the service endpoints to srv.
func (svc *Service) Register(srv *server.Server) error {
	return srv.RegisterEndpoints(svc.Endpoints()...)
}

// Encode handles the encode endpoint.
func (svc *Service) Encode(_ context.Context, req *EncodeRequest, res *EncodeResponse) error {
	if err := svc.checkLen(req.Text); err != nil {
		return err
	}

	res.Encoded = svc.transcoder.Encode(req.Text, req.Key)
	res.Original = req.Text
	res.Key = req.Key
	return nil
}

// Decode handles the decode endpoint.
func (svc *Service) Decode(_ context.Context, req *DecodeRequest, res *DecodeResponse) error {
	if err := svc.checkLen(req.Numbers); err != nil {
		return err
	}

	res.Decoded = svc.transcoder.Decode(req.Numbers, req.Key)
	res.Original = req.Numbers
	res.Key = req.Key
	return nil
}

// Candidates handles the candidates endpoint. Runes other than ASCII digits
// are skipped.
func (svc *Service) Candidates(_ context.Context, req *CandidatesRequest, res *CandidatesResponse) error {
	if err := svc.checkLen(req.Numbers); err != nil {
		return err
	}

	res.Candidates = DigitCandidates(req.Numbers, req.Key)
	return nil
}

// DigitCandidates returns the candidate consonants of every ASCII digit in
// numbers after reversing the key shift.
func DigitCandidates(numbers string, key int) [][]string {
	out := make([][]string, 0, len(numbers))
	for _, r := range numbers {
		if r < '0' || r > '9' {
			continue
		}
		d := (int(r-'0') - transcoder.Shift(key) + 10) % 10
		out = append(out, transcoder.Candidates(d))
	}
	return out
}

func (svc *Service) checkLen(input string) error {
	limit := DefaultMaxInputLen
	if svc.maxInputLen.HasValue() && svc.maxInputLen.Get() > 0 {
		limit = int(svc.maxInputLen.Get())
	}

	if n := utf8.RuneCountInString(input); n > limit {
		return fmt.Errorf("%w: %d runes exceeds the limit of %d", ErrInputTooLong, n, limit)
	}
	return nil
}

func init() {
	config.SetDefaults("service", map[string]string{
		"maxinputlen":    fmt.Sprint(DefaultMaxInputLen),
		"maxconcurrent":  fmt.Sprint(concurrency.DefaultMaxConcurrent),
		"acquiretimeout": concurrency.DefaultAcquireTimeout.String(),
	})
	config.SetDefaults("transcoder", map[string]string{
		"key":      "0",
		"clusters": "false",
	})
}
