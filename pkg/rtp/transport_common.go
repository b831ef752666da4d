// Общие утилиты UDP сокетов для RTP и RTCP
//
// Файл содержит константы, проверку конфигурации, настройку сокета для
// голосового трафика (буферы, DSCP) и классификацию сетевых ошибок.
// Платформенные настройки вынесены в transport_socket_*.go.
package rtp

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	// DefaultBufferSize размер буфера чтения (MTU Ethernet)
	DefaultBufferSize = 1500

	// MaxDatagramSize максимальный размер UDP датаграммы
	MaxDatagramSize = 65535

	// VoiceOptimizedRecvBuffer размер буфера получения для голоса
	VoiceOptimizedRecvBuffer = 65535

	// VoiceOptimizedSendBuffer размер буфера отправки для голоса
	VoiceOptimizedSendBuffer = 65535

	// DSCP значения согласно RFC 4594
	DSCPExpeditedForwarding = 46 // EF для интерактивного аудио
	DSCPBestEffort          = 0
)

// ApplyDefaults применяет значения по умолчанию
func (c *SocketConfig) ApplyDefaults() {
	if c.BufferSize == 0 {
		c.BufferSize = DefaultBufferSize
	}
}

// Validate проверяет корректность конфигурации сокета
func (c *SocketConfig) Validate() error {
	if c.BufferSize < 0 || c.BufferSize > MaxDatagramSize {
		return fmt.Errorf("размер буфера должен быть в диапазоне 0-%d", MaxDatagramSize)
	}
	if c.RecvBufferSize < 0 || c.SendBufferSize < 0 {
		return fmt.Errorf("размеры буферов сокета не могут быть отрицательными")
	}
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("DSCP должен быть в диапазоне 0-63")
	}
	return nil
}

// setSockOptForVoice настраивает UDP сокет для голосового трафика
func setSockOptForVoice(conn *net.UDPConn, config SocketConfig) error {
	if conn == nil {
		return fmt.Errorf("соединение не может быть nil")
	}

	if config.RecvBufferSize > 0 {
		if err := conn.SetReadBuffer(config.RecvBufferSize); err != nil {
			return fmt.Errorf("SO_RCVBUF (%d): %w", config.RecvBufferSize, err)
		}
	}
	if config.SendBufferSize > 0 {
		if err := conn.SetWriteBuffer(config.SendBufferSize); err != nil {
			return fmt.Errorf("SO_SNDBUF (%d): %w", config.SendBufferSize, err)
		}
	}

	rawConn, err := conn.SyscallConn()
	if err != nil {
		return fmt.Errorf("не удалось получить системный сокет: %w", err)
	}

	var sockOptErr error
	err = rawConn.Control(func(fd uintptr) {
		sockOptErr = applyPlatformSockOpts(fd, config)
	})
	if err != nil {
		return fmt.Errorf("ошибка управления сокетом: %w", err)
	}
	return sockOptErr
}

// NetworkErrorType типы сетевых ошибок
type NetworkErrorType int

const (
	ErrorTypeTemporary  NetworkErrorType = iota // Временная ошибка (повтор возможен)
	ErrorTypePermanent                          // Постоянная ошибка
	ErrorTypeTimeout                            // Таймаут
	ErrorTypeConnection                         // ICMP отказ, недоступность хоста
	ErrorTypeClosed                             // Сокет закрыт
	ErrorTypeUnknown                            // Неклассифицированная ошибка
)

// String возвращает имя типа ошибки
func (t NetworkErrorType) String() string {
	switch t {
	case ErrorTypeTemporary:
		return "temporary"
	case ErrorTypePermanent:
		return "permanent"
	case ErrorTypeTimeout:
		return "timeout"
	case ErrorTypeConnection:
		return "connection"
	case ErrorTypeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ClassifiedError обертка сетевой ошибки с классификацией
type ClassifiedError struct {
	Type      NetworkErrorType
	Operation string
	Err       error
	Retryable bool
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s (type: %s, retryable: %t)",
		e.Operation, e.Err.Error(), e.Type, e.Retryable)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// ErrorType возвращает тип ошибки, если она классифицирована
func ErrorType(err error) NetworkErrorType {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Type
	}
	return ErrorTypeUnknown
}

// classifyNetworkError анализирует сетевую ошибку
func classifyNetworkError(operation string, err error) error {
	if err == nil {
		return nil
	}

	classified := &ClassifiedError{
		Operation: operation,
		Err:       err,
		Type:      ErrorTypeUnknown,
	}

	var netErr net.Error
	switch {
	case errors.Is(err, net.ErrClosed):
		classified.Type = ErrorTypeClosed

	case errors.As(err, &netErr) && netErr.Timeout():
		classified.Type = ErrorTypeTimeout
		classified.Retryable = true

	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR), errors.Is(err, syscall.ENOBUFS):
		classified.Type = ErrorTypeTemporary
		classified.Retryable = true

	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.EHOSTUNREACH),
		errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.ECONNRESET):
		// На UDP это отложенный ICMP ответ на предыдущую отправку
		classified.Type = ErrorTypeConnection
		classified.Retryable = true

	case errors.Is(err, syscall.EINVAL), errors.Is(err, syscall.EACCES),
		errors.Is(err, syscall.EADDRINUSE), errors.Is(err, syscall.EADDRNOTAVAIL):
		classified.Type = ErrorTypePermanent
	}

	return classified
}

// TransportStatistics статистика сокета
type TransportStatistics struct {
	PacketsSent     uint64
	PacketsReceived uint64
	BytesSent       uint64
	BytesReceived   uint64
	ErrorsSend      uint64
	ErrorsReceive   uint64
	LastActivity    time.Time
	ConnectionTime  time.Time
	LocalAddr       string
}

// GetUptime возвращает время работы сокета
func (ts TransportStatistics) GetUptime() time.Duration {
	if ts.ConnectionTime.IsZero() {
		return 0
	}
	return time.Since(ts.ConnectionTime)
}

// socketCounters атомарные счетчики для горячего пути
type socketCounters struct {
	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64
	errorsSend      atomic.Uint64
	errorsReceive   atomic.Uint64
	lastActivity    atomic.Int64 // unix nano
}

func (c *socketCounters) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}
