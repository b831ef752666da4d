package audiodev

import (
	"sync"

	"github.com/gammazero/deque"
)

// pcmBuffer потокобезопасная очередь сэмплов с ограничением длины.
// При переполнении отбрасываются самые старые сэмплы.
type pcmBuffer struct {
	mutex   sync.Mutex
	samples deque.Deque[int16]
	limit   int
	dropped uint64
}

func newPCMBuffer(limit int) *pcmBuffer {
	return &pcmBuffer{limit: limit}
}

// push добавляет сэмплы в конец очереди
func (b *pcmBuffer) push(pcm []int16) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	for _, s := range pcm {
		b.samples.PushBack(s)
	}
	for b.samples.Len() > b.limit {
		b.samples.PopFront()
		b.dropped++
	}
}

// pop заполняет out из начала очереди, недостающее дополняется тишиной.
// Возвращает количество реально прочитанных сэмплов.
func (b *pcmBuffer) pop(out []int16) int {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	n := 0
	for ; n < len(out) && b.samples.Len() > 0; n++ {
		out[n] = b.samples.PopFront()
	}
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n
}

func (b *pcmBuffer) len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.samples.Len()
}

// resample преобразует частоту дискретизации для кратных частот:
// понижение усредняет соседние сэмплы, повышение повторяет их
func resample(pcm []int16, from, to int) []int16 {
	switch {
	case from == to || from <= 0 || to <= 0:
		return pcm
	case from > to:
		ratio := from / to
		out := make([]int16, len(pcm)/ratio)
		for i := range out {
			sum := 0
			for j := 0; j < ratio; j++ {
				sum += int(pcm[i*ratio+j])
			}
			out[i] = int16(sum / ratio)
		}
		return out
	default:
		ratio := to / from
		out := make([]int16, len(pcm)*ratio)
		for i, s := range pcm {
			for j := 0; j < ratio; j++ {
				out[i*ratio+j] = s
			}
		}
		return out
	}
}

func bytesToInt16(b []byte) []int16 {
	n := len(b) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}

func int16ToBytes(samples []int16, out []byte) {
	for i, v := range samples {
		if 2*i+1 >= len(out) {
			return
		}
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
}
