package rtp

import (
	"net"
)

// PacketHandler обработчик входящих датаграмм.
// Буфер packet переиспользуется циклом чтения и действителен только
// на время вызова: обработчик обязан скопировать данные, если они нужны позже.
// Вызывается из горутины чтения сокета и не должен блокироваться.
type PacketHandler func(packet []byte, from *net.UDPAddr)

// Socket определяет интерфейс UDP сокета для RTP/RTCP
type Socket interface {
	// Start регистрирует обработчик входящих датаграмм и запускает чтение
	Start(handler PacketHandler) error

	// SendTo отправляет датаграмму на указанный адрес
	SendTo(packet []byte, addr *net.UDPAddr) error

	// LocalAddr возвращает адрес, к которому привязан сокет
	LocalAddr() *net.UDPAddr

	// Close закрывает сокет и дожидается завершения цикла чтения
	Close() error

	// IsActive проверяет, открыт ли сокет
	IsActive() bool

	// Statistics возвращает счетчики пакетов и ошибок сокета
	Statistics() TransportStatistics
}

var _ Socket = (*UDPSocket)(nil)

// SocketConfig конфигурация UDP сокета
type SocketConfig struct {
	BufferSize     int // Размер буфера чтения (максимальный размер датаграммы)
	RecvBufferSize int // SO_RCVBUF, 0 - значение по умолчанию
	SendBufferSize int // SO_SNDBUF, 0 - значение по умолчанию
	DSCP           int // DSCP маркировка для QoS (0 - не устанавливать)
}

// DefaultSocketConfig возвращает конфигурацию по умолчанию
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		BufferSize:     DefaultBufferSize,
		RecvBufferSize: VoiceOptimizedRecvBuffer,
		SendBufferSize: VoiceOptimizedSendBuffer,
		DSCP:           DSCPExpeditedForwarding,
	}
}
