package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/sirupsen/logrus"

	"github.com/arzzra/voip_client/pkg/codec"
)

const (
	// DefaultPacketInterval длительность аудио фрейма в одном RTP пакете
	DefaultPacketInterval = 20 * time.Millisecond
	// DefaultRTCPInterval период отправки RTCP отчетов
	DefaultRTCPInterval = 5 * time.Second

	rtpVersion = 2
	// ntpEpochOffset секунды между эпохой NTP (1900) и Unix (1970)
	ntpEpochOffset = 2208988800
)

// SoftConfig конфигурация программного движка
type SoftConfig struct {
	Source         AudioSource // Источник исходящего звука (по умолчанию тон 440 Гц)
	Sink           AudioSink   // Приемник входящего звука (по умолчанию NullSink)
	Logger         logrus.FieldLogger
	PacketInterval time.Duration
	RTCPInterval   time.Duration
	CNAME          string // CNAME для RTCP SDES
}

// DefaultSoftConfig возвращает конфигурацию по умолчанию
func DefaultSoftConfig() SoftConfig {
	return SoftConfig{
		Source:         NewToneSource(),
		Sink:           &NullSink{},
		Logger:         logrus.StandardLogger(),
		PacketInterval: DefaultPacketInterval,
		RTCPInterval:   DefaultRTCPInterval,
		CNAME:          "voip_client",
	}
}

// ChannelStatistics статистика канала программного движка
type ChannelStatistics struct {
	SSRC            uint32
	PacketsSent     uint64
	BytesSent       uint64
	PacketsReceived uint64
	BytesReceived   uint64
	RTCPSent        uint64
	RTCPReceived    uint64
	RemoteSSRC      uint32
	LastSequence    uint16
	Sending         bool
	Playing         bool
}

// SoftEngine эталонный движок на чистом Go: G.711/G.722, пакетизация
// через pion/rtp и отчеты через pion/rtcp. Каждый канал обслуживается
// собственной горутиной, которая формирует фреймы по таймеру.
type SoftEngine struct {
	config SoftConfig
	log    logrus.FieldLogger

	mutex    sync.Mutex
	channels map[ChannelID]*softChannel
	nextID   ChannelID
	closed   bool
}

// NewSoftEngine создает программный движок
func NewSoftEngine(config SoftConfig) *SoftEngine {
	defaults := DefaultSoftConfig()
	if config.Source == nil {
		config.Source = defaults.Source
	}
	if config.Sink == nil {
		config.Sink = defaults.Sink
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.PacketInterval <= 0 {
		config.PacketInterval = defaults.PacketInterval
	}
	if config.RTCPInterval <= 0 {
		config.RTCPInterval = defaults.RTCPInterval
	}
	if config.CNAME == "" {
		config.CNAME = defaults.CNAME
	}

	return &SoftEngine{
		config:   config,
		log:      config.Logger.WithField("component", "engine"),
		channels: make(map[ChannelID]*softChannel),
		nextID:   1,
	}
}

// SupportedCodecs возвращает кодеки, которые движок умеет кодировать
func (e *SoftEngine) SupportedCodecs() []codec.Spec {
	specs := make([]codec.Spec, 0, len(softCodecs))
	for _, impl := range softCodecs {
		specs = append(specs, codec.Spec{Format: impl.format})
	}
	return specs
}

// CreateChannel создает канал и запускает его горутину
func (e *SoftEngine) CreateChannel(transport Transport) ChannelID {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	id := e.nextID
	e.nextID++

	ch := &softChannel{
		id:        id,
		transport: transport,
		config:    e.config,
		log:       e.log.WithField("channel", id),
		ssrc:      rand.Uint32(),
		seq:       uint16(rand.Uint32()),
		timestamp: rand.Uint32(),
		recv:      make(map[uint8]*codecImpl),
		decoders:  make(map[uint8]audioDecoder),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if e.closed {
		// Канал закрытого движка не регистрируется: все операции с ним вернут ErrUnknownChannel
		close(ch.done)
		return id
	}
	e.channels[id] = ch
	go ch.loop()

	ch.log.Debug("канал создан")
	return id
}

// ReleaseChannel останавливает канал и удаляет его
func (e *SoftEngine) ReleaseChannel(id ChannelID) error {
	e.mutex.Lock()
	ch, ok := e.channels[id]
	delete(e.channels, id)
	e.mutex.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, id)
	}
	ch.shutdown()
	ch.log.Debug("канал освобожден")
	return nil
}

func (e *SoftEngine) StartSend(id ChannelID) error {
	ch, err := e.channel(id)
	if err != nil {
		return err
	}
	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	if ch.encoder == nil {
		return ErrCodecNotConfigured
	}
	ch.sending = true
	ch.first = true
	return nil
}

func (e *SoftEngine) StopSend(id ChannelID) error {
	ch, err := e.channel(id)
	if err != nil {
		return err
	}
	ch.mutex.Lock()
	ch.sending = false
	ch.mutex.Unlock()
	return nil
}

func (e *SoftEngine) StartPlayout(id ChannelID) error {
	ch, err := e.channel(id)
	if err != nil {
		return err
	}
	ch.mutex.Lock()
	ch.playing = true
	ch.mutex.Unlock()
	return nil
}

func (e *SoftEngine) StopPlayout(id ChannelID) error {
	ch, err := e.channel(id)
	if err != nil {
		return err
	}
	ch.mutex.Lock()
	ch.playing = false
	ch.mutex.Unlock()
	return nil
}

// SetSendCodec задает кодек отправки; смена кодека сбрасывает состояние кодера
func (e *SoftEngine) SetSendCodec(id ChannelID, payloadType uint8, format codec.Format) error {
	ch, err := e.channel(id)
	if err != nil {
		return err
	}
	impl, ok := findCodec(format.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedCodec, format)
	}

	ch.mutex.Lock()
	defer ch.mutex.Unlock()
	ch.sendPT = payloadType
	ch.sendCodec = impl
	ch.encoder = impl.newEncoder()
	return nil
}

// SetReceiveCodecs заменяет набор кодеков приема. Неизвестные движку
// кодеки пропускаются: пакеты с их payload type будут отклонены.
func (e *SoftEngine) SetReceiveCodecs(id ChannelID, formats map[uint8]codec.Format) error {
	ch, err := e.channel(id)
	if err != nil {
		return err
	}

	recv := make(map[uint8]*codecImpl, len(formats))
	decoders := make(map[uint8]audioDecoder, len(formats))
	for pt, format := range formats {
		impl, ok := findCodec(format.Name)
		if !ok {
			ch.log.WithField("codec", format.String()).Debug("кодек приема не поддерживается, пропускаем")
			continue
		}
		recv[pt] = impl
		decoders[pt] = impl.newDecoder()
	}

	ch.mutex.Lock()
	ch.recv = recv
	ch.decoders = decoders
	ch.mutex.Unlock()
	return nil
}

// ReceivedRTPPacket разбирает RTP пакет и при включенном воспроизведении
// декодирует его в AudioSink
func (e *SoftEngine) ReceivedRTPPacket(id ChannelID, packet []byte) error {
	ch, err := e.channel(id)
	if err != nil {
		return err
	}

	var pkt rtp.Packet
	if err := pkt.Unmarshal(packet); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	ch.mutex.Lock()
	ch.stats.PacketsReceived++
	ch.stats.BytesReceived += uint64(len(packet))
	ch.stats.RemoteSSRC = pkt.SSRC
	ch.stats.LastSequence = pkt.SequenceNumber

	if !ch.playing {
		ch.mutex.Unlock()
		return nil
	}
	impl, ok := ch.recv[pkt.PayloadType]
	if !ok {
		ch.mutex.Unlock()
		return fmt.Errorf("%w: %d", ErrUnsupportedPayload, pkt.PayloadType)
	}
	pcm := ch.decoders[pkt.PayloadType].Decode(pkt.Payload)
	ch.mutex.Unlock()

	ch.config.Sink.WritePCM(pcm, impl.sampleRate)
	return nil
}

// ReceivedRTCPPacket разбирает составной RTCP пакет
func (e *SoftEngine) ReceivedRTCPPacket(id ChannelID, packet []byte) error {
	ch, err := e.channel(id)
	if err != nil {
		return err
	}

	packets, err := rtcp.Unmarshal(packet)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}

	ch.mutex.Lock()
	ch.stats.RTCPReceived++
	ch.mutex.Unlock()

	for _, p := range packets {
		switch report := p.(type) {
		case *rtcp.SenderReport:
			ch.log.WithFields(logrus.Fields{
				"ssrc":    report.SSRC,
				"packets": report.PacketCount,
			}).Debug("получен sender report")
		case *rtcp.Goodbye:
			ch.log.WithField("sources", report.Sources).Debug("получен BYE")
		}
	}
	return nil
}

// Statistics возвращает статистику канала
func (e *SoftEngine) Statistics(id ChannelID) (ChannelStatistics, error) {
	ch, err := e.channel(id)
	if err != nil {
		return ChannelStatistics{}, err
	}
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	stats := ch.stats
	stats.SSRC = ch.ssrc
	stats.Sending = ch.sending
	stats.Playing = ch.playing
	return stats, nil
}

// Close останавливает все каналы. Повторный вызов возвращает nil.
func (e *SoftEngine) Close() error {
	e.mutex.Lock()
	if e.closed {
		e.mutex.Unlock()
		return nil
	}
	e.closed = true
	channels := e.channels
	e.channels = make(map[ChannelID]*softChannel)
	e.mutex.Unlock()

	for _, ch := range channels {
		ch.shutdown()
	}
	e.log.Info("движок остановлен")
	return nil
}

func (e *SoftEngine) channel(id ChannelID) (*softChannel, error) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if ch, ok := e.channels[id]; ok {
		return ch, nil
	}
	if e.closed {
		return nil, ErrClosed
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownChannel, id)
}

// softChannel состояние одного канала
type softChannel struct {
	id        ChannelID
	transport Transport
	config    SoftConfig
	log       logrus.FieldLogger

	mutex     sync.Mutex
	sendPT    uint8
	sendCodec *codecImpl
	encoder   audioEncoder
	recv      map[uint8]*codecImpl
	decoders  map[uint8]audioDecoder
	sending   bool
	playing   bool
	first     bool // следующий пакет первый после StartSend (marker bit)

	ssrc      uint32
	seq       uint16
	timestamp uint32
	stats     ChannelStatistics

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// loop формирует фреймы и отчеты по таймерам до остановки канала
func (ch *softChannel) loop() {
	defer close(ch.done)

	frames := time.NewTicker(ch.config.PacketInterval)
	defer frames.Stop()
	reports := time.NewTicker(ch.config.RTCPInterval)
	defer reports.Stop()

	for {
		select {
		case <-ch.stop:
			ch.sendGoodbye()
			return
		case <-frames.C:
			ch.sendFrame()
		case <-reports.C:
			ch.sendReport()
		}
	}
}

func (ch *softChannel) shutdown() {
	ch.stopOnce.Do(func() { close(ch.stop) })
	<-ch.done
}

// sendFrame кодирует один фрейм и отдает его транспорту
func (ch *softChannel) sendFrame() {
	ch.mutex.Lock()
	if !ch.sending || ch.encoder == nil {
		ch.mutex.Unlock()
		return
	}

	impl := ch.sendCodec
	samples := impl.sampleRate * int(ch.config.PacketInterval) / int(time.Second)
	pcm := make([]int16, samples)
	ch.config.Source.ReadPCM(pcm, impl.sampleRate)

	pkt := rtp.Packet{
		Header: rtp.Header{
			Version:        rtpVersion,
			Marker:         ch.first,
			PayloadType:    ch.sendPT,
			SequenceNumber: ch.seq,
			Timestamp:      ch.timestamp,
			SSRC:           ch.ssrc,
		},
		Payload: ch.encoder.Encode(pcm),
	}
	ch.first = false
	ch.seq++
	ch.timestamp += uint32(uint64(impl.format.ClockRate) * uint64(ch.config.PacketInterval) / uint64(time.Second))

	data, err := pkt.Marshal()
	if err != nil {
		ch.mutex.Unlock()
		ch.log.WithError(err).Error("не удалось сформировать RTP пакет")
		return
	}
	ch.stats.PacketsSent++
	ch.stats.BytesSent += uint64(len(pkt.Payload))
	seq := pkt.SequenceNumber
	ch.mutex.Unlock()

	if !ch.transport.SendRTP(data, PacketOptions{PacketID: int64(seq)}) {
		ch.log.WithField("seq", seq).Debug("транспорт отклонил RTP пакет")
	}
}

// sendReport отправляет SR (если идет отправка) или RR вместе с SDES
func (ch *softChannel) sendReport() {
	ch.mutex.Lock()
	var report rtcp.Packet
	switch {
	case ch.sending:
		report = &rtcp.SenderReport{
			SSRC:        ch.ssrc,
			NTPTime:     ntpTime(time.Now()),
			RTPTime:     ch.timestamp,
			PacketCount: uint32(ch.stats.PacketsSent),
			OctetCount:  uint32(ch.stats.BytesSent),
		}
	case ch.playing && ch.stats.PacketsReceived > 0:
		report = &rtcp.ReceiverReport{
			SSRC: ch.ssrc,
			Reports: []rtcp.ReceptionReport{{
				SSRC:               ch.stats.RemoteSSRC,
				LastSequenceNumber: uint32(ch.stats.LastSequence),
			}},
		}
	default:
		ch.mutex.Unlock()
		return
	}
	ch.stats.RTCPSent++
	ssrc := ch.ssrc
	ch.mutex.Unlock()

	ch.sendRTCP(report, &rtcp.SourceDescription{
		Chunks: []rtcp.SourceDescriptionChunk{{
			Source: ssrc,
			Items:  []rtcp.SourceDescriptionItem{{Type: rtcp.SDESCNAME, Text: ch.config.CNAME}},
		}},
	})
}

// sendGoodbye сообщает удаленной стороне об остановке, если шла отправка
func (ch *softChannel) sendGoodbye() {
	ch.mutex.Lock()
	sent := ch.stats.PacketsSent
	ssrc := ch.ssrc
	ch.mutex.Unlock()

	if sent == 0 {
		return
	}
	ch.sendRTCP(&rtcp.Goodbye{Sources: []uint32{ssrc}})
}

func (ch *softChannel) sendRTCP(packets ...rtcp.Packet) {
	data, err := rtcp.Marshal(packets)
	if err != nil {
		ch.log.WithError(err).Error("не удалось сформировать RTCP пакет")
		return
	}
	if !ch.transport.SendRTCP(data) {
		ch.log.Debug("транспорт отклонил RTCP пакет")
	}
}

// ntpTime переводит время в 64-битный формат NTP
func ntpTime(t time.Time) uint64 {
	seconds := uint64(t.Unix()) + ntpEpochOffset
	fraction := (uint64(t.Nanosecond()) << 32) / uint64(time.Second)
	return seconds<<32 | fraction
}
