// Package engine определяет контракт аудио движка, которым управляет
// контроллер сессии, и содержит эталонную программную реализацию.
//
// Контроллер вызывает методы Engine только из своего рабочего потока.
// Движок в свою очередь отдает готовые RTP/RTCP пакеты через Transport
// синхронно из собственного контекста; реализации Transport не должны
// блокироваться.
package engine

import (
	"errors"

	"github.com/arzzra/voip_client/pkg/codec"
)

// ChannelID идентификатор канала движка (одна активная аудио сессия)
type ChannelID int

// PacketOptions дополнительные параметры отправки RTP пакета
type PacketOptions struct {
	PacketID             int64 // Идентификатор пакета для transport-wide feedback, -1 если не задан
	IncludedInFeedback   bool
	IncludedInAllocation bool
}

// Transport интерфейс отправки пакетов, предоставляемый движку.
// Возвращаемое значение означает "пакет принят к отправке".
// Буфер packet действителен только на время вызова.
type Transport interface {
	SendRTP(packet []byte, options PacketOptions) bool
	SendRTCP(packet []byte) bool
}

// Engine аудио движок: каналы, кодеки и прием пакетов из сети
type Engine interface {
	// SupportedCodecs перечисляет поддерживаемые кодеки. Вызывается один раз.
	SupportedCodecs() []codec.Spec

	// CreateChannel создает канал, отправляющий пакеты через transport.
	// Всегда возвращает валидный идентификатор.
	CreateChannel(transport Transport) ChannelID

	// ReleaseChannel освобождает канал
	ReleaseChannel(id ChannelID) error

	StartSend(id ChannelID) error
	StopSend(id ChannelID) error
	StartPlayout(id ChannelID) error
	StopPlayout(id ChannelID) error

	// SetSendCodec задает кодек для исходящего потока
	SetSendCodec(id ChannelID, payloadType uint8, format codec.Format) error

	// SetReceiveCodecs задает полный набор кодеков для входящего потока
	SetReceiveCodecs(id ChannelID, formats map[uint8]codec.Format) error

	// ReceivedRTPPacket передает движку RTP пакет из сети
	ReceivedRTPPacket(id ChannelID, packet []byte) error

	// ReceivedRTCPPacket передает движку RTCP пакет из сети
	ReceivedRTCPPacket(id ChannelID, packet []byte) error

	// Close освобождает все каналы и ресурсы движка
	Close() error
}

// Ошибки движка
var (
	ErrUnknownChannel     = errors.New("неизвестный канал")
	ErrUnsupportedCodec   = errors.New("кодек не поддерживается движком")
	ErrCodecNotConfigured = errors.New("кодек отправки не задан")
	ErrUnsupportedPayload = errors.New("payload type не настроен для приема")
	ErrMalformedPacket    = errors.New("некорректный пакет")
	ErrClosed             = errors.New("движок закрыт")
)
