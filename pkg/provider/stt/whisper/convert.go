package whisper

import "encoding/binary"

// modelRate is the only sample rate whisper.cpp models accept.
const modelRate = 16000

// modelSamples converts captured s16le PCM into model input: mono float32 in
// [-1, 1] at 16 kHz. Channels are averaged per frame and other capture rates
// are linearly resampled. A trailing partial frame is ignored.
func modelSamples(pcm []byte, channels, rate int) []float32 {
	if channels < 1 {
		channels = 1
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum int
		for ch := range channels {
			off := (i*channels + ch) * 2
			sum += int(int16(binary.LittleEndian.Uint16(pcm[off:])))
		}
		mono[i] = float32(sum) / float32(channels) / 32768
	}
	if rate <= 0 || rate == modelRate {
		return mono
	}
	return resample(mono, rate, modelRate)
}

// resample changes the rate of in from one rate to another by linear
// interpolation between neighbouring samples.
func resample(in []float32, from, to int) []float32 {
	if len(in) == 0 || from <= 0 || to <= 0 {
		return nil
	}
	out := make([]float32, int(int64(len(in))*int64(to)/int64(from)))
	step := float64(from) / float64(to)
	last := len(in) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(j))
		out[i] = in[j] + (in[j+1]-in[j])*frac
	}
	return out
}
