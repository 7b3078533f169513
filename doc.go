// Package callflow layers request/response calls on top of Watermill
// publish/subscribe transports. A Service publishes a request with a fresh
// correlationId header and waits for the reply carrying the same id on a
// response topic, while registered handlers answer requests published by
// other services, in Go or otherwise.
//
// The target transport (Kafka, RabbitMQ, AWS SNS/SQS, NATS or in-memory Go
// channels) is read from Config. Every handler registration and every
// response topic gets its own subscriber, so several consumer groups can
// share one topic and each sees every message.
//
// A minimal setup fills Config (or calls LoadConfigFromEnv), creates a
// Service, registers handlers and calls Start:
//
//	svc, err := callflow.NewService(cfg, logger, callflow.ServiceDependencies{})
//	if err != nil {
//		return err
//	}
//	if err := svc.Start(ctx); err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	reply, err := callflow.CallJSON[TokenValidation](ctx, svc,
//		callflow.TopicCheckUserExists, TokenRequest{Token: token},
//		callflow.TopicTokenValidationResponse, 5*time.Second)
//
// # Transports
//
//   - channel: In-memory Go channels for tests and local runs
//   - kafka: Consumer groups map to Kafka consumer groups
//   - rabbitmq: One durable queue per topic and consumer group
//   - aws: SNS topics fanned out to one SQS queue per consumer group, with LocalStack support
//   - nats: Queue groups on core NATS
//
// # Errors
//
// Calls that see no reply in time fail with *TimeoutError (IsTimeout).
// Broker failures surface as *TransportError or *ConnectError (IsTransport).
// Replies nobody waits for are dropped and counted, never returned.
//
// # Middleware
//
// Handlers run behind message logging, OpenTelemetry tracing and panic
// recovery. JobHooksMiddleware adds OnJobStart, OnJobDone and OnJobError
// callbacks; custom middleware goes in ServiceDependencies.Middlewares.
package callflow
