package engine

// G.711 μ-law и A-law (ITU-T G.711)

const (
	ulawBias = 0x84
	ulawClip = 32635
)

// alawSegmentEnds верхние границы сегментов A-law (после сдвига на 3 бита)
var alawSegmentEnds = [8]int{0x1F, 0x3F, 0x7F, 0xFF, 0x1FF, 0x3FF, 0x7FF, 0xFFF}

type g711Encoder struct {
	alaw bool
}

func (e g711Encoder) Encode(pcm []int16) []byte {
	out := make([]byte, len(pcm))
	for i, s := range pcm {
		if e.alaw {
			out[i] = linearToALaw(s)
		} else {
			out[i] = linearToULaw(s)
		}
	}
	return out
}

type g711Decoder struct {
	alaw bool
}

func (d g711Decoder) Decode(payload []byte) []int16 {
	out := make([]int16, len(payload))
	for i, b := range payload {
		if d.alaw {
			out[i] = aLawToLinear(b)
		} else {
			out[i] = uLawToLinear(b)
		}
	}
	return out
}

func linearToULaw(sample int16) byte {
	s := int(sample)
	sign := 0
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exponent := 7
	for mask := 0x4000; s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := (s >> (exponent + 3)) & 0x0F
	return ^byte(sign | exponent<<4 | mantissa)
}

func uLawToLinear(u byte) int16 {
	u = ^u
	exponent := int(u>>4) & 0x07
	mantissa := int(u & 0x0F)
	sample := (((mantissa << 3) + ulawBias) << exponent) - ulawBias
	if u&0x80 != 0 {
		return int16(-sample)
	}
	return int16(sample)
}

func linearToALaw(sample int16) byte {
	pcm := int(sample) >> 3
	mask := 0xD5
	if pcm < 0 {
		mask = 0x55
		pcm = -pcm - 1
	}

	segment := 0
	for segment < len(alawSegmentEnds) && pcm > alawSegmentEnds[segment] {
		segment++
	}
	if segment >= len(alawSegmentEnds) {
		return byte(0x7F ^ mask)
	}

	aval := segment << 4
	if segment < 2 {
		aval |= (pcm >> 1) & 0x0F
	} else {
		aval |= (pcm >> segment) & 0x0F
	}
	return byte(aval ^ mask)
}

func aLawToLinear(a byte) int16 {
	a ^= 0x55
	t := int(a&0x0F) << 4
	segment := int(a&0x70) >> 4
	switch segment {
	case 0:
		t += 8
	case 1:
		t += 0x108
	default:
		t += 0x108
		t <<= segment - 1
	}
	if a&0x80 != 0 {
		return int16(t)
	}
	return int16(-t)
}
