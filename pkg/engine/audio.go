package engine

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/gotranspile/g722"

	"github.com/arzzra/voip_client/pkg/codec"
)

// AudioSource источник PCM для исходящего потока.
// ReadPCM заполняет pcm целиком (mono, 16 бит) с частотой sampleRate.
type AudioSource interface {
	ReadPCM(pcm []int16, sampleRate int)
}

// AudioSink приемник декодированного PCM входящего потока.
// Должен быть безопасен для вызова из разных горутин.
type AudioSink interface {
	WritePCM(pcm []int16, sampleRate int)
}

// ToneSource генератор синусоидального тона
type ToneSource struct {
	Frequency float64
	Amplitude int16

	mutex sync.Mutex
	phase float64
}

// NewToneSource создает генератор тона 440 Гц
func NewToneSource() *ToneSource {
	return &ToneSource{Frequency: 440, Amplitude: 8000}
}

// ReadPCM генерирует следующий фрагмент тона
func (s *ToneSource) ReadPCM(pcm []int16, sampleRate int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	step := 2 * math.Pi * s.Frequency / float64(sampleRate)
	for i := range pcm {
		pcm[i] = int16(float64(s.Amplitude) * math.Sin(s.phase))
		s.phase += step
		if s.phase > 2*math.Pi {
			s.phase -= 2 * math.Pi
		}
	}
}

// SilenceSource источник тишины
type SilenceSource struct{}

// ReadPCM заполняет буфер нулями
func (SilenceSource) ReadPCM(pcm []int16, _ int) {
	for i := range pcm {
		pcm[i] = 0
	}
}

// NullSink отбрасывает звук, считая полученные сэмплы
type NullSink struct {
	samples atomic.Uint64
}

// WritePCM учитывает сэмплы
func (s *NullSink) WritePCM(pcm []int16, _ int) {
	s.samples.Add(uint64(len(pcm)))
}

// Samples возвращает количество полученных сэмплов
func (s *NullSink) Samples() uint64 {
	return s.samples.Load()
}

// audioEncoder кодирует фрейм PCM в полезную нагрузку RTP
type audioEncoder interface {
	Encode(pcm []int16) []byte
}

// audioDecoder декодирует полезную нагрузку RTP в PCM
type audioDecoder interface {
	Decode(payload []byte) []int16
}

// codecImpl реализация кодека программного движка
type codecImpl struct {
	format     codec.Format
	sampleRate int // частота PCM (для G722 отличается от RTP clock rate)
	newEncoder func() audioEncoder
	newDecoder func() audioDecoder
}

// softCodecs кодеки, которые программный движок умеет кодировать и декодировать
var softCodecs = []codecImpl{
	{
		format:     codec.Format{Name: "PCMU", ClockRate: 8000, Channels: 1},
		sampleRate: 8000,
		newEncoder: func() audioEncoder { return g711Encoder{alaw: false} },
		newDecoder: func() audioDecoder { return g711Decoder{alaw: false} },
	},
	{
		format:     codec.Format{Name: "PCMA", ClockRate: 8000, Channels: 1},
		sampleRate: 8000,
		newEncoder: func() audioEncoder { return g711Encoder{alaw: true} },
		newDecoder: func() audioDecoder { return g711Decoder{alaw: true} },
	},
	{
		// RFC 3551: G722 объявляется с clock rate 8000, хотя дискретизация 16 кГц
		format:     codec.Format{Name: "G722", ClockRate: 8000, Channels: 1},
		sampleRate: 16000,
		newEncoder: func() audioEncoder { return &g722Encoder{enc: g722.NewEncoder(g722.Rate64000, 0)} },
		newDecoder: func() audioDecoder { return &g722Decoder{dec: g722.NewDecoder(g722.Rate64000, 0)} },
	},
}

// findCodec ищет реализацию по имени
func findCodec(name string) (*codecImpl, bool) {
	for i := range softCodecs {
		if softCodecs[i].format.Name == name {
			return &softCodecs[i], true
		}
	}
	return nil, false
}

// g722Encoder G.722 64 кбит/с: один байт на два сэмпла 16 кГц
type g722Encoder struct {
	enc *g722.Encoder
}

func (e *g722Encoder) Encode(pcm []int16) []byte {
	out := make([]byte, (len(pcm)+1)/2)
	n := e.enc.Encode(out, pcm)
	return out[:n]
}

type g722Decoder struct {
	dec *g722.Decoder
}

func (d *g722Decoder) Decode(payload []byte) []int16 {
	out := make([]int16, len(payload)*2)
	n := d.dec.Decode(out, payload)
	return out[:n]
}
