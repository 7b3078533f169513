/*
Package runtime implements request/response calls on top of one-way
publish/subscribe transports.

# Architecture Overview

A Service owns one shared Watermill publisher and opens a dedicated
subscriber per consumer group through the configured transport. Two kinds of
subscription exist:

  - Response subscriptions, one per response topic, created lazily by the
    first Call that waits on the topic and kept until Close. They resolve
    pending calls by the correlationId header.
  - Handler subscriptions, one per RegisterHandler call, never shared. Each
    runs the handler through the middleware chain and, when a reply topic is
    configured, publishes the result with the request's correlation id.

# Package Structure

## Core Service (service.go)

Lifecycle: NewService, Start, Close and Run. Transports come from
transport.Factory, by default the registry in package transport.

## Calls (call.go, router.go, publisher.go)

Call registers a pending entry in the correlation registry, ensures the
response subscription, publishes and waits. CallJSON decodes the reply.
Publish sends without waiting.

## Handler Registration (registration.go)

RegisterHandler, RegisterJSONHandler and RegisterProtoHandler. Registrations
are keyed by topic and consumer group.

## Middleware and Hooks (middleware.go, hooks.go)

  - LogMessages: debug logging of payloads
  - Tracer: OpenTelemetry consumer spans continuing the caller's trace
  - Recoverer: panics become handler errors
  - JobHooks: start/done/error callbacks

## Observability (metrics.go, models.go, webui.go)

Prometheus collectors for calls, dropped replies and handler outcomes, plus
per-handler latency stats served on /api/handlers and the pending calls on
/api/pending.

# Sub-packages

  - config/: Service configuration, environment and YAML loading
  - correlation/: Pending call registry
  - errors/: Sentinel errors and error types
  - handlers/: Request types and typed handler adapters
  - ids/: ULID generation for correlation and message ids
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Message header utilities
  - transport/: Transport factory wiring the registered transports

# Usage Example

	cfg, err := callflow.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	svc, err := callflow.NewService(cfg, logger, callflow.ServiceDependencies{})
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer svc.Close()

	reply, err := callflow.CallJSON[TokenValidation](ctx, svc,
		callflow.TopicCheckUserExists, TokenRequest{Token: token},
		callflow.TopicTokenValidationResponse, 5*time.Second)
*/
package runtime
