package voip

import (
	"errors"
	"fmt"
)

// ErrorCode типизированные коды ошибок контроллера сессии
type ErrorCode int

const (
	// Ошибки конфигурации и инициализации
	ErrorCodeInvalidConfig ErrorCode = iota + 2000
	ErrorCodeEngineInit
	ErrorCodeInitTimeout
	ErrorCodeClosed

	// Ошибки состояния сессии
	ErrorCodeSessionNotIdle
	ErrorCodeSessionNotActive
	ErrorCodeAddressNotSet
	ErrorCodeInvalidAddress

	// Ошибки ресурсов
	ErrorCodeSocketBind
	ErrorCodeSocketSend

	// Нарушения инвариантов движка
	ErrorCodeEngineFailure
)

// String возвращает строковое представление кода ошибки
func (code ErrorCode) String() string {
	switch code {
	case ErrorCodeInvalidConfig:
		return "InvalidConfig"
	case ErrorCodeEngineInit:
		return "EngineInit"
	case ErrorCodeInitTimeout:
		return "InitTimeout"
	case ErrorCodeClosed:
		return "Closed"
	case ErrorCodeSessionNotIdle:
		return "SessionNotIdle"
	case ErrorCodeSessionNotActive:
		return "SessionNotActive"
	case ErrorCodeAddressNotSet:
		return "AddressNotSet"
	case ErrorCodeInvalidAddress:
		return "InvalidAddress"
	case ErrorCodeSocketBind:
		return "SocketBind"
	case ErrorCodeSocketSend:
		return "SocketSend"
	case ErrorCodeEngineFailure:
		return "EngineFailure"
	default:
		return fmt.Sprintf("Unknown(%d)", int(code))
	}
}

// Error ошибка контроллера сессии с кодом и идентификатором сессии
// для сопоставления с логами
type Error struct {
	Code      ErrorCode
	Message   string
	SessionID string
	Wrapped   error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Wrapped != nil {
		msg = msg + ": " + e.Wrapped.Error()
	}
	if e.SessionID != "" {
		return fmt.Sprintf("[voip:%s] сессия %s: %s", e.Code, e.SessionID, msg)
	}
	return fmt.Sprintf("[voip:%s] %s", e.Code, msg)
}

// Unwrap возвращает обернутую ошибку
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is сравнивает ошибки по коду
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

func newError(code ErrorCode, message string, wrapped error) *Error {
	return &Error{Code: code, Message: message, Wrapped: wrapped}
}

// HasErrorCode проверяет, содержит ли цепочка ошибок Error с кодом code
func HasErrorCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
