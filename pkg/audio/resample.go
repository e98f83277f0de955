// Package audio provides the codec and sample-rate conversion utilities used
// by the telephony serializers: a stateful streaming resampler and μ-law
// transcoding helpers built on zaf/g711.
//
// All PCM in this package is little-endian 16-bit mono, matching the canonical
// [github.com/kenpath-ai/voicebridge/pkg/frames.Audio] representation.
package audio

import "encoding/binary"

// Resampler converts 16-bit mono PCM between sample rates using linear
// interpolation. Unlike a one-shot conversion, a Resampler carries its filter
// state (the final sample and the fractional read position) across calls so
// that back-to-back chunks of one stream resample without discontinuities.
//
// Create one Resampler per stream direction and never share it across
// sessions. A Resampler is not safe for concurrent use.
type Resampler struct {
	last    int16
	hasLast bool
	// pos is the fractional source read position carried into the next call,
	// measured from the stored last sample.
	pos float64
}

// Resample converts pcm from srcRate to dstRate. If the rates match, pcm is
// returned unchanged (zero allocation). An empty or single-sample input that
// cannot be interpolated yet is buffered into the state and yields nil.
func (r *Resampler) Resample(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate {
		return pcm
	}

	cur := bytesToSamples(pcm)
	src := cur
	if r.hasLast {
		src = make([]int16, 0, len(cur)+1)
		src = append(src, r.last)
		src = append(src, cur...)
	}
	if len(src) < 2 {
		if len(src) == 1 {
			r.last = src[0]
			r.hasLast = true
		}
		return nil
	}

	ratio := float64(srcRate) / float64(dstRate)
	out := make([]int16, 0, int(float64(len(src))/ratio)+1)

	pos := r.pos
	limit := float64(len(src) - 1)
	for pos <= limit {
		idx := int(pos)
		frac := pos - float64(idx)
		s0 := src[idx]
		s1 := s0
		if idx+1 < len(src) {
			s1 = src[idx+1]
		}
		out = append(out, int16(float64(s0)*(1-frac)+float64(s1)*frac))
		pos += ratio
	}

	// The final source sample seeds interpolation of the next chunk.
	r.pos = pos - limit
	r.last = src[len(src)-1]
	r.hasLast = true

	if len(out) == 0 {
		return nil
	}
	return samplesToBytes(out)
}

// Reset clears the carried filter state. Subsequent calls behave as if the
// Resampler were freshly constructed.
func (r *Resampler) Reset() {
	r.last = 0
	r.hasLast = false
	r.pos = 0
}

func bytesToSamples(pcm []byte) []int16 {
	n := len(pcm) / 2
	s := make([]int16, n)
	for i := range n {
		s[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return s
}

func samplesToBytes(s []int16) []byte {
	b := make([]byte, len(s)*2)
	for i, v := range s {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(v))
	}
	return b
}
