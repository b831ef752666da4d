package voip

import (
	"errors"
	"sync"

	"github.com/arzzra/voip_client/pkg/codec"
	"github.com/arzzra/voip_client/pkg/engine"
)

var errFake = errors.New("ошибка движка")

// fakeEngine движок для тестов: запоминает вызовы и полученные пакеты
type fakeEngine struct {
	mutex sync.Mutex

	codecs    []codec.Spec
	nextID    engine.ChannelID
	channels  map[engine.ChannelID]bool
	transport engine.Transport

	sendCodecs []string
	recvCodecs map[uint8]codec.Format
	rtp        [][]byte
	rtcp       [][]byte
	closed     bool

	failStartSend    error
	failStopSend     error
	failSetSendCodec error
	failReceive      error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		codecs: []codec.Spec{
			{Format: codec.Format{Name: "PCMU", ClockRate: 8000, Channels: 1}},
			{Format: codec.Format{Name: "PCMA", ClockRate: 8000, Channels: 1}},
			{Format: codec.Format{Name: "opus", ClockRate: 48000, Channels: 2}},
			{Format: codec.Format{Name: "VP8", ClockRate: 90000}},
		},
		nextID:   100,
		channels: make(map[engine.ChannelID]bool),
	}
}

func (e *fakeEngine) SupportedCodecs() []codec.Spec {
	return e.codecs
}

func (e *fakeEngine) CreateChannel(transport engine.Transport) engine.ChannelID {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	id := e.nextID
	e.nextID++
	e.channels[id] = true
	e.transport = transport
	return id
}

func (e *fakeEngine) ReleaseChannel(id engine.ChannelID) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if !e.channels[id] {
		return engine.ErrUnknownChannel
	}
	delete(e.channels, id)
	return nil
}

func (e *fakeEngine) check(id engine.ChannelID) error {
	if !e.channels[id] {
		return engine.ErrUnknownChannel
	}
	return nil
}

func (e *fakeEngine) StartSend(id engine.ChannelID) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.failStartSend != nil {
		return e.failStartSend
	}
	return e.check(id)
}

func (e *fakeEngine) StopSend(id engine.ChannelID) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.failStopSend != nil {
		return e.failStopSend
	}
	return e.check(id)
}

func (e *fakeEngine) StartPlayout(id engine.ChannelID) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.check(id)
}

func (e *fakeEngine) StopPlayout(id engine.ChannelID) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.check(id)
}

func (e *fakeEngine) SetSendCodec(id engine.ChannelID, _ uint8, format codec.Format) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.failSetSendCodec != nil {
		return e.failSetSendCodec
	}
	e.sendCodecs = append(e.sendCodecs, format.Name)
	return e.check(id)
}

func (e *fakeEngine) SetReceiveCodecs(id engine.ChannelID, formats map[uint8]codec.Format) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.recvCodecs = formats
	return e.check(id)
}

func (e *fakeEngine) ReceivedRTPPacket(id engine.ChannelID, packet []byte) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.failReceive != nil {
		return e.failReceive
	}
	e.rtp = append(e.rtp, packet)
	return e.check(id)
}

func (e *fakeEngine) ReceivedRTCPPacket(id engine.ChannelID, packet []byte) error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	if e.failReceive != nil {
		return e.failReceive
	}
	e.rtcp = append(e.rtcp, packet)
	return e.check(id)
}

func (e *fakeEngine) Close() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.closed = true
	return nil
}

// Методы доступа для тестов

func (e *fakeEngine) set(fn func(e *fakeEngine)) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	fn(e)
}

func (e *fakeEngine) channelCount() int {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return len(e.channels)
}

func (e *fakeEngine) lastTransport() engine.Transport {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.transport
}

func (e *fakeEngine) sendCodecCalls() []string {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([]string(nil), e.sendCodecs...)
}

func (e *fakeEngine) receiveCodecs() map[uint8]codec.Format {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.recvCodecs
}

func (e *fakeEngine) receivedRTP() [][]byte {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([][]byte(nil), e.rtp...)
}

func (e *fakeEngine) receivedRTCP() [][]byte {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return append([][]byte(nil), e.rtcp...)
}

func (e *fakeEngine) isClosed() bool {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.closed
}
