package callflow

import (
	"context"
	"time"

	"google.golang.org/protobuf/proto"

	runtimepkg "github.com/drblury/callflow/internal/runtime"
	configpkg "github.com/drblury/callflow/internal/runtime/config"
	errspkg "github.com/drblury/callflow/internal/runtime/errors"
	handlerpkg "github.com/drblury/callflow/internal/runtime/handlers"
	idspkg "github.com/drblury/callflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/callflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/callflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/callflow/internal/runtime/metadata"
	transportpkg "github.com/drblury/callflow/internal/runtime/transport"
	"github.com/drblury/callflow/transport"
)

// Topics and consumer groups shared with the existing user validation
// services.
const (
	TopicCheckUserExists          = "check_user_exists"
	TopicTokenValidationResponse  = "token_validation_response"
	TopicCheckUserIsAdmin         = "check_user_is_admin"
	TopicCheckUserIsAdminResponse = "check_user_is_admin_response"

	GroupUserValidationExists = "user-validation-group-exists"
	GroupUserValidationAdmin  = "user-validation-group-admin"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies
	Reply               = runtimepkg.Reply
	Producer            = runtimepkg.Producer
	TransportFactory    = transportpkg.Factory
	TransportFunc       = transportpkg.FactoryFunc

	HandlerRegistration                                        = runtimepkg.HandlerRegistration
	HandlerFunc                                                = handlerpkg.Func
	Request                                                    = handlerpkg.Request
	JSONHandlerRegistration[T any, O any]                      = handlerpkg.JSONHandlerRegistration[T, O]
	JSONHandler[T any, O any]                                  = handlerpkg.JSONHandler[T, O]
	JSONRequest[T any]                                         = handlerpkg.JSONRequest[T]
	ProtoHandlerRegistration[T proto.Message, O proto.Message] = handlerpkg.ProtoHandlerRegistration[T, O]
	ProtoHandler[T proto.Message, O proto.Message]             = handlerpkg.ProtoHandler[T, O]
	ProtoRequest[T proto.Message]                              = handlerpkg.ProtoRequest[T]

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	HandlerInfo              = runtimepkg.HandlerInfo
	HandlerState             = runtimepkg.HandlerState
	HandlerStats             = runtimepkg.HandlerStats
	StatsSnapshot            = runtimepkg.StatsSnapshot
	ResponseSubscriptionInfo = runtimepkg.ResponseSubscriptionInfo

	// Job lifecycle hooks
	JobContext = runtimepkg.JobContext
	JobHooks   = runtimepkg.JobHooks

	// Error classification
	ErrorClassifier = runtimepkg.ErrorClassifier
	ErrorCategory   = runtimepkg.ErrorCategory

	// Errors
	TimeoutError          = errspkg.TimeoutError
	TransportError        = errspkg.TransportError
	ConnectError          = errspkg.ConnectError
	DecodeError           = errspkg.DecodeError
	HandlerError          = errspkg.HandlerError
	ConfigValidationError = errspkg.ConfigValidationError

	// Transports
	Transport             = transport.Transport
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

var (
	NewService         = runtimepkg.NewService
	DefaultConfig      = configpkg.Default
	LoadConfigFromEnv  = configpkg.LoadFromEnv
	LoadConfigFile     = configpkg.LoadFile
	ValidateConfig     = configpkg.ValidateConfig
	DefaultTransports  = transportpkg.DefaultFactory
	StaticTransport    = transportpkg.Static
	HandlerKey         = runtimepkg.HandlerKey
	RegisterHandler    = runtimepkg.RegisterHandler
	DefaultMiddlewares = runtimepkg.DefaultMiddlewares

	LogMessagesMiddleware = runtimepkg.LogMessagesMiddleware
	TracerMiddleware      = runtimepkg.TracerMiddleware
	RecovererMiddleware   = runtimepkg.RecovererMiddleware

	// Job lifecycle hooks
	JobHooksMiddleware = runtimepkg.JobHooksMiddleware
	LoggingHooks       = runtimepkg.LoggingHooks
	AlertingHooks      = runtimepkg.AlertingHooks

	// Transport registry
	DefaultTransportRegistry = transport.DefaultRegistry
	RegisterTransport        = transport.Register
	BuildTransport           = transport.Build
	GetCapabilities          = transport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrServiceRequired          = errspkg.ErrServiceRequired
	ErrHandlerRequired          = errspkg.ErrHandlerRequired
	ErrTopicRequired            = errspkg.ErrTopicRequired
	ErrResponseTopicRequired    = errspkg.ErrResponseTopicRequired
	ErrConsumerGroupRequired    = errspkg.ErrConsumerGroupRequired
	ErrPublisherRequired        = errspkg.ErrPublisherRequired
	ErrConfigRequired           = errspkg.ErrConfigRequired
	ErrLoggerRequired           = errspkg.ErrLoggerRequired
	ErrHandlerAlreadyRegistered = errspkg.ErrHandlerAlreadyRegistered
	ErrServiceNotStarted        = errspkg.ErrServiceNotStarted
	ErrServiceAlreadyStarted    = errspkg.ErrServiceAlreadyStarted
	ErrServiceClosed            = errspkg.ErrServiceClosed
	ErrResponseTimeout          = errspkg.ErrResponseTimeout
	ErrTransport                = errspkg.ErrTransport

	IsTimeout   = errspkg.IsTimeout
	IsTransport = errspkg.IsTransport

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewZerologServiceLogger   = loggingpkg.NewZerologServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger

	NewMetadata = metadatapkg.New

	CreateULID       = idspkg.CreateULID
	NewCorrelationID = idspkg.NewCorrelationID
)

// Metadata keys stamped by callflow.
const (
	MetadataKeyCorrelationID = metadatapkg.CorrelationIDKey
	MetadataKeyHandler       = metadatapkg.HandlerNameKey
	MetadataKeyTopic         = metadatapkg.TopicKey
)

// Handler connection states.
const (
	HandlerCreated      = runtimepkg.HandlerCreated
	HandlerConnecting   = runtimepkg.HandlerConnecting
	HandlerSubscribed   = runtimepkg.HandlerSubscribed
	HandlerRunning      = runtimepkg.HandlerRunning
	HandlerDisconnected = runtimepkg.HandlerDisconnected
)

// Error category constants for ErrorClassifier.
const (
	ErrorCategoryNone      = runtimepkg.ErrorCategoryNone
	ErrorCategoryDecode    = runtimepkg.ErrorCategoryDecode
	ErrorCategoryTransport = runtimepkg.ErrorCategoryTransport
	ErrorCategoryPanic     = runtimepkg.ErrorCategoryPanic
	ErrorCategoryTimeout   = runtimepkg.ErrorCategoryTimeout
	ErrorCategoryHandler   = runtimepkg.ErrorCategoryHandler
)

// Reasons a reply is dropped by the response router.
const (
	DropMissingCorrelationID = runtimepkg.DropMissingCorrelationID
	DropDecodeError          = runtimepkg.DropDecodeError
	DropUnmatched            = runtimepkg.DropUnmatched
)

// CallJSON publishes payload to requestTopic and decodes the matching reply
// from responseTopic into R.
func CallJSON[R any](ctx context.Context, svc *Service, requestTopic string, payload any, responseTopic string, timeout time.Duration) (R, error) {
	return runtimepkg.CallJSON[R](ctx, svc, requestTopic, payload, responseTopic, timeout)
}

func RegisterJSONHandler[T any, O any](svc *Service, cfg JSONHandlerRegistration[T, O]) error {
	return runtimepkg.RegisterJSONHandler(svc, cfg)
}

func RegisterProtoHandler[T proto.Message, O proto.Message](svc *Service, cfg ProtoHandlerRegistration[T, O]) error {
	return runtimepkg.RegisterProtoHandler(svc, cfg)
}

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
