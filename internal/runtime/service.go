package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/callflow/internal/runtime/config"
	"github.com/drblury/callflow/internal/runtime/correlation"
	errspkg "github.com/drblury/callflow/internal/runtime/errors"
	idspkg "github.com/drblury/callflow/internal/runtime/ids"
	loggingpkg "github.com/drblury/callflow/internal/runtime/logging"
	transportpkg "github.com/drblury/callflow/internal/runtime/transport"
	"github.com/drblury/callflow/transport"
)

const (
	tracerName          = "github.com/drblury/callflow"
	httpShutdownTimeout = 5 * time.Second
)

type serviceState int

const (
	serviceCreated serviceState = iota
	serviceRunning
	serviceClosed
)

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	TransportFactory          transportpkg.Factory
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	JobHooks                  JobHooks
	ErrorClassifier           ErrorClassifier

	// MetricsRegisterer receives the callflow collectors when metrics are
	// enabled. A private registry is used when nil.
	MetricsRegisterer prometheus.Registerer
	TracerProvider    trace.TracerProvider
	Propagator        propagation.TextMapPropagator

	// NewCorrelationID overrides correlation id generation.
	NewCorrelationID func() string
}

// Service owns the shared publisher, the response-topic subscriptions used by
// Call and the dedicated subscriptions of registered handlers.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	wmLogger   watermill.LoggerAdapter
	factory    transportpkg.Factory
	classifier ErrorClassifier
	newID      func() string
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	metrics    *serviceMetrics

	middlewares []message.HandlerMiddleware

	mu        sync.RWMutex
	state     serviceState
	transport transport.Transport
	publisher message.Publisher
	startedAt time.Time
	runCtx    context.Context
	runCancel context.CancelFunc

	pending *correlation.Registry[Reply]

	responsesMu     sync.Mutex
	responses       map[string]*subscription
	responsesClosed bool

	handlersMu     sync.RWMutex
	handlers       map[string]*handlerRuntime
	handlerOrder   []*handlerRuntime
	handlersClosed bool

	httpMu      sync.Mutex
	httpMuxes   map[int]*http.ServeMux
	httpServers []*http.Server
}

// NewService constructs a Service for the supplied configuration. Register
// handlers before or after Start; those registered before are connected by
// Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}
	// A custom factory may understand names the registry does not.
	if deps.TransportFactory == nil && !transport.Has(conf.GetPubSubSystem()) {
		return nil, errspkg.NewConfigValidationError(fmt.Errorf("pubsub: unknown system %q (registered: %v)", conf.GetPubSubSystem(), transport.Names()))
	}

	log.Info("Creating callflow service", loggingpkg.LogFields{
		"pubsub_system": conf.GetPubSubSystem(),
		"config":        conf.String(),
	})

	s := &Service{
		Conf:       conf,
		Logger:     log,
		wmLogger:   loggingpkg.NewWatermillAdapter(log),
		factory:    deps.TransportFactory,
		classifier: deps.ErrorClassifier,
		newID:      deps.NewCorrelationID,
		propagator: deps.Propagator,
		pending:    correlation.NewRegistry[Reply](),
		responses:  make(map[string]*subscription),
		handlers:   make(map[string]*handlerRuntime),
	}
	if s.factory == nil {
		s.factory = transportpkg.DefaultFactory()
	}
	if s.classifier == nil {
		s.classifier = defaultErrorClassifier
	}
	if s.newID == nil {
		s.newID = idspkg.NewCorrelationID
	}
	if s.propagator == nil {
		s.propagator = propagation.TraceContext{}
	}
	provider := deps.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	s.tracer = provider.Tracer(tracerName)

	if conf.MetricsEnabled {
		metrics, err := newServiceMetrics(deps.MetricsRegisterer, s.pending.Len)
		if err != nil {
			return nil, fmt.Errorf("callflow: register metrics: %w", err)
		}
		s.metrics = metrics
		if conf.MetricsPort > 0 {
			s.RegisterHTTPHandler(conf.MetricsPort, "/metrics", metrics.handler())
		}
	}
	s.registerWebUI()

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}
	return s, nil
}

// Start builds the transport, connects handlers registered so far in parallel
// and starts the HTTP servers. When a handler cannot connect, everything
// opened so far is closed again and the service cannot be restarted.
func (s *Service) Start(ctx context.Context) error {
	if err := s.open(ctx); err != nil {
		return err
	}

	var g errgroup.Group
	for _, h := range s.registeredHandlers() {
		g.Go(func() error { return s.connectHandler(h) })
	}
	if err := g.Wait(); err != nil {
		return errors.Join(err, s.Close())
	}

	s.startHTTPServers()
	s.Logger.Info("Callflow service started", loggingpkg.LogFields{
		"pubsub_system": s.Conf.GetPubSubSystem(),
		"handlers":      len(s.registeredHandlers()),
	})
	return nil
}

func (s *Service) open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case serviceRunning:
		return errspkg.ErrServiceAlreadyStarted
	case serviceClosed:
		return errspkg.ErrServiceClosed
	}

	tr, err := s.factory.Build(ctx, s.Conf, s.wmLogger)
	if err != nil {
		s.Logger.Error("Failed to build transport", err, loggingpkg.LogFields{"pubsub_system": s.Conf.GetPubSubSystem()})
		return &errspkg.TransportError{Op: "connect", Err: err}
	}
	publisher, err := s.metrics.decoratePublisher(tr.Publisher)
	if err != nil {
		return errors.Join(fmt.Errorf("callflow: decorate publisher: %w", err), tr.Publisher.Close(), tr.Close())
	}

	s.transport = tr
	s.publisher = publisher
	s.startedAt = time.Now()
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	s.state = serviceRunning
	return nil
}

// Close disconnects the publisher, then every response and handler
// subscription, waiting for each to stop. It is safe to call more than once.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.state == serviceClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = serviceClosed
	publisher := s.publisher
	tr := s.transport
	cancel := s.runCancel
	s.mu.Unlock()

	var errs []error
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("callflow: close publisher: %w", err))
		}
	}
	for _, sub := range s.drainResponses() {
		if err := sub.close(); err != nil {
			errs = append(errs, fmt.Errorf("callflow: close response subscription %q: %w", sub.topic, err))
		}
	}
	for _, h := range s.drainHandlers() {
		if err := h.disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("callflow: close handler %s: %w", h.name, err))
		}
	}
	if err := tr.Close(); err != nil {
		errs = append(errs, fmt.Errorf("callflow: shutdown transport: %w", err))
	}
	if cancel != nil {
		cancel()
	}
	if err := s.stopHTTPServers(); err != nil {
		errs = append(errs, err)
	}

	if pending := s.pending.Len(); pending > 0 {
		s.Logger.Info("Closed with calls still pending", loggingpkg.LogFields{"pending_calls": pending})
	}
	s.Logger.Info("Callflow service closed", nil)
	return errors.Join(errs...)
}

// Run starts the service, blocks until ctx is done and closes it.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

func (s *Service) checkRunning() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case serviceCreated:
		return errspkg.ErrServiceNotStarted
	case serviceClosed:
		return errspkg.ErrServiceClosed
	}
	return nil
}

// running returns the transport state needed to open a subscription.
func (s *Service) running() (transport.Transport, context.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case serviceCreated:
		return transport.Transport{}, nil, errspkg.ErrServiceNotStarted
	case serviceClosed:
		return transport.Transport{}, nil, errspkg.ErrServiceClosed
	}
	return s.transport, s.runCtx, nil
}

func (s *Service) sharedPublisher() message.Publisher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publisher
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares)+1)
	// Hooks wrap the recoverer so a panic still reaches OnJobError.
	if deps.JobHooks.configured() {
		registrations = append(registrations, JobHooksMiddleware(deps.JobHooks))
	}
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("callflow: register middleware %s: %w", name, err)
		}
	}
	return nil
}

// RegisterHTTPHandler mounts handler on the server for port. Servers start
// with the service.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpMu.Lock()
	defer s.httpMu.Unlock()

	if s.httpMuxes == nil {
		s.httpMuxes = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpMuxes[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpMuxes[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpMu.Lock()
	defer s.httpMu.Unlock()

	for port, mux := range s.httpMuxes {
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.httpServers = append(s.httpServers, server)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": server.Addr})
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("HTTP server stopped", err, loggingpkg.LogFields{"address": server.Addr})
			}
		}()
	}
}

func (s *Service) stopHTTPServers() error {
	s.httpMu.Lock()
	servers := s.httpServers
	s.httpServers = nil
	s.httpMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	var errs []error
	for _, server := range servers {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("callflow: stop HTTP server %s: %w", server.Addr, err))
		}
	}
	return errors.Join(errs...)
}
