// Package server exposes the listing engine over HTTP: the ajax dispatch
// endpoint used by the filter bar, saved searches, config records, XLSX
// export, health and metrics. A gRPC listener carries the health service.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alfredjeanlab/datatable/internal/auth"
	"github.com/alfredjeanlab/datatable/internal/datatable"
	"github.com/alfredjeanlab/datatable/internal/events"
	"github.com/alfredjeanlab/datatable/internal/listing"
	"github.com/alfredjeanlab/datatable/internal/savedsearch"
	"github.com/alfredjeanlab/datatable/internal/store"
)

// Options wires a Server. Store and Engine are required.
type Options struct {
	Store         store.Store
	Engine        *datatable.Engine
	Publisher     events.Publisher
	Authenticator *auth.Authenticator
	// DefaultCapabilities are granted to every principal.
	DefaultCapabilities []string
	Location            *time.Location
	Logger              *slog.Logger
	// Registerer and Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Server handles listing, saved-search and config requests.
type Server struct {
	store     store.Store
	engine    *datatable.Engine
	publisher events.Publisher
	authn     *auth.Authenticator
	checker   *auth.Checker
	searches  *savedsearch.Service
	location  *time.Location
	logger    *slog.Logger
	options   *optionsCache
	metrics   *metrics
	gatherer  prometheus.Gatherer
}

// New returns a Server built from o.
func New(o Options) *Server {
	if o.Publisher == nil {
		o.Publisher = events.NoopPublisher{}
	}
	if o.Authenticator == nil {
		o.Authenticator = auth.NewAuthenticator("", "")
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.DefaultRegisterer
	}
	if o.Gatherer == nil {
		o.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		store:     o.Store,
		engine:    o.Engine,
		publisher: o.Publisher,
		authn:     o.Authenticator,
		checker:   auth.NewChecker(o.Store, o.DefaultCapabilities),
		searches:  savedsearch.New(o.Store, o.Publisher, o.Logger),
		location:  o.Location,
		logger:    o.Logger,
		options:   newOptionsCache(o.Store),
		metrics:   newMetrics(o.Registerer),
		gatherer:  o.Gatherer,
	}
}

// WatchConfigs drops cached listing options whenever any instance changes a
// config record. It returns once the subscription is established.
func (s *Server) WatchConfigs(ctx context.Context, sub events.Subscriber) error {
	return events.WatchConfigs(ctx, sub, s.logger, s.options.invalidate)
}

// table checks that the principal may view the listing kind in the context
// named by p, then builds and prepares it.
func (s *Server) table(ctx context.Context, kind string, p listing.Params) (*datatable.Table, error) {
	sc, err := listing.ScopeOf(kind, p)
	if err != nil {
		return nil, err
	}
	opts, err := s.options.get(ctx, kind, sc.ContextLevel)
	if err != nil {
		return nil, err
	}
	capability := sc.Capability
	if opts.Capability != "" {
		capability = opts.Capability
	}
	principal, _ := auth.FromContext(ctx)
	if err := s.checker.Require(ctx, principal, capability, sc.Level, sc.ID); err != nil {
		return nil, err
	}

	def, err := listing.Build(ctx, kind, listing.Env{Catalog: s.store, Location: s.location}, p)
	if err != nil {
		return nil, err
	}
	return datatable.Prepare(def, opts)
}
