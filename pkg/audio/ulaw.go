package audio

import "github.com/zaf/g711"

// PCMToUlaw resamples 16-bit mono PCM from srcRate to dstRate and compands
// the result to 8-bit μ-law. r holds the per-stream resampler state and must
// be the same instance for every call on one outbound direction.
//
// An empty input, or an input too short to resample yet, yields nil.
func PCMToUlaw(pcm []byte, srcRate, dstRate int, r *Resampler) []byte {
	if len(pcm) == 0 {
		return nil
	}
	out := r.Resample(pcm, srcRate, dstRate)
	if len(out) == 0 {
		return nil
	}
	return g711.EncodeUlaw(out)
}

// UlawToPCM expands 8-bit μ-law to 16-bit mono PCM at srcRate, then resamples
// to dstRate. r holds the per-stream resampler state and must be the same
// instance for every call on one inbound direction.
//
// An empty input yields nil.
func UlawToPCM(ulaw []byte, srcRate, dstRate int, r *Resampler) []byte {
	if len(ulaw) == 0 {
		return nil
	}
	pcm := g711.DecodeUlaw(ulaw)
	out := r.Resample(pcm, srcRate, dstRate)
	if len(out) == 0 {
		return nil
	}
	return out
}
