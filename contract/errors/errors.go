package errors

// Error codes for the bus contracts. Keep stable; used across adapters, the mediator and the event bus.
const (
	ErrCodeDuplicateHandlerRegistration = "eventbus.duplicate_handler_registration"
	ErrCodeEventNameConflict            = "eventbus.event_name_conflict"
	ErrCodeNoCommandHandler             = "eventbus.no_command_handler"
	ErrCodeNoQueryHandler               = "eventbus.no_query_handler"
	ErrCodeCommandsNotConfigured        = "eventbus.commands_not_configured"
	ErrCodeHandlerExists                = "eventbus.handler_exists"
	ErrCodeHandlerTypeMismatch          = "eventbus.handler_type_mismatch"
	ErrCodeUnknownEvent                 = "eventbus.unknown_event"
	ErrCodeDeserialization              = "eventbus.deserialization_failed"
	ErrCodeSerializationFailed          = "eventbus.serialization_failed"
	ErrCodeHandlerFailed                = "eventbus.handler_failed"
	ErrCodeBrokerUnavailable            = "eventbus.broker_unavailable"
	ErrCodeBrokerClosed                 = "eventbus.broker_closed"
	ErrCodePublishFailed                = "eventbus.publish_failed"
	ErrCodeConsumeFailed                = "eventbus.consume_failed"
	ErrCodeBusClosed                    = "eventbus.closed"
)

// Code returns an error value that carries only a code string.
// It implements error by returning the code string in Error().
func Code(code string) error { return codedError(code) }

type codedError string

func (e codedError) Error() string { return string(e) }

var (
	ErrDuplicateHandlerRegistration = Code(ErrCodeDuplicateHandlerRegistration)
	ErrEventNameConflict            = Code(ErrCodeEventNameConflict)
	ErrNoCommandHandler             = Code(ErrCodeNoCommandHandler)
	ErrNoQueryHandler               = Code(ErrCodeNoQueryHandler)
	ErrCommandsNotConfigured        = Code(ErrCodeCommandsNotConfigured)
	ErrHandlerExists                = Code(ErrCodeHandlerExists)
	ErrHandlerTypeMismatch          = Code(ErrCodeHandlerTypeMismatch)
	ErrUnknownEvent                 = Code(ErrCodeUnknownEvent)
	ErrDeserialization              = Code(ErrCodeDeserialization)
	ErrSerializationFailed          = Code(ErrCodeSerializationFailed)
	ErrHandlerFailed                = Code(ErrCodeHandlerFailed)
	ErrBrokerUnavailable            = Code(ErrCodeBrokerUnavailable)
	// ErrBrokerClosed marks a broker shut down by its owner; it always comes joined with
	// ErrBrokerUnavailable and is never retried.
	ErrBrokerClosed                 = Code(ErrCodeBrokerClosed)
	ErrPublishFailed                = Code(ErrCodePublishFailed)
	ErrConsumeFailed                = Code(ErrCodeConsumeFailed)
	ErrBusClosed                    = Code(ErrCodeBusClosed)
)
