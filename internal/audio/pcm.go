package audio

import (
	"encoding/binary"
	"time"
)

// FloatToPCM16LE converts float32 samples in [-1, 1] to PCM16LE bytes.
// Out-of-range samples are clipped rather than wrapped.
func FloatToPCM16LE(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	return pcm
}

// PCM16LEToFloat converts PCM16LE bytes back to float32 samples. A trailing
// odd byte is ignored.
func PCM16LEToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(v) / 32768
	}
	return samples
}

// Silence returns PCM16LE zero samples covering d at the given sample rate.
func Silence(sampleRate int, d time.Duration) []byte {
	if sampleRate <= 0 || d <= 0 {
		return nil
	}
	n := int(float64(sampleRate) * d.Seconds())
	return make([]byte, n*2)
}

// Duration reports the play time of PCM16LE mono bytes at the given rate.
func Duration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// Concat joins PCM16LE segments into one buffer.
func Concat(segments ...[]byte) []byte {
	total := 0
	for _, seg := range segments {
		total += len(seg)
	}
	out := make([]byte, 0, total)
	for _, seg := range segments {
		out = append(out, seg...)
	}
	return out
}

// StretchLinear re-times PCM16LE audio by factor (>1 shortens, <1 lengthens)
// using linear interpolation. It shifts pitch along with tempo, so it is only
// the fallback when ffmpeg's atempo filter is unavailable.
func StretchLinear(pcm []byte, factor float64) []byte {
	if factor <= 0 || len(pcm) < 4 {
		return pcm
	}
	in := PCM16LEToFloat(pcm)
	outLen := int(float64(len(in)) / factor)
	if outLen < 1 {
		outLen = 1
	}
	out := make([]float32, outLen)
	for i := range out {
		pos := float64(i) * factor
		j := int(pos)
		if j >= len(in)-1 {
			out[i] = in[len(in)-1]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j]*(1-frac) + in[j+1]*frac
	}
	return FloatToPCM16LE(out)
}

// TrimSilence removes leading and trailing near-silence and clamps internal
// silent runs to keep. threshold is the absolute PCM16 amplitude below which
// a sample counts as silent.
func TrimSilence(pcm []byte, sampleRate int, threshold int16, keep time.Duration) []byte {
	if sampleRate <= 0 || len(pcm) < 2 {
		return pcm
	}
	samples := PCM16LEToFloat(pcm)
	limit := float32(threshold) / 32768

	keepSamples := int(float64(sampleRate) * keep.Seconds())
	if keepSamples < 1 {
		keepSamples = 1
	}

	loud := func(s float32) bool {
		if s < 0 {
			s = -s
		}
		return s >= limit
	}

	first, last := -1, -1
	for i, s := range samples {
		if loud(s) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		// All silence.
		return nil
	}
	samples = samples[first : last+1]

	out := make([]float32, 0, len(samples))
	run := 0
	for _, s := range samples {
		if loud(s) {
			run = 0
			out = append(out, s)
			continue
		}
		run++
		if run <= keepSamples {
			out = append(out, s)
		}
	}
	return FloatToPCM16LE(out)
}
