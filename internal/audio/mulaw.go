// Package audio holds G.711 μ-law helpers for telephony audio.
package audio

import (
	"math"
	"time"
)

// TelephonySampleRate is the sample rate of Twilio media streams (8kHz mono μ-law)
const TelephonySampleRate = 8000

// Duration returns the playback length of n bytes of 8-bit mono audio at sampleRate.
// μ-law carries one sample per byte.
func Duration(n int, sampleRate int) time.Duration {
	if n <= 0 || sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}

// MulawDuration returns the playback length of a telephony μ-law payload
func MulawDuration(payload []byte) time.Duration {
	return Duration(len(payload), TelephonySampleRate)
}

// DecodeMulaw expands μ-law bytes into 16-bit linear samples
func DecodeMulaw(data []byte) []int16 {
	samples := make([]int16, len(data))
	for i, b := range data {
		samples[i] = mulawToLinear(b)
	}
	return samples
}

// Level returns the RMS level of a μ-law payload on the 16-bit linear scale
func Level(data []byte) float64 {
	return CalculateRMS(DecodeMulaw(data))
}

// mulawToLinear converts an 8-bit μ-law sample to 16-bit linear PCM
func mulawToLinear(b byte) int16 {
	b = ^b

	sign := b & 0x80
	segment := int32((b >> 4) & 0x07)
	mantissa := int32(b & 0x0F)

	magnitude := ((mantissa<<3)+0x84)<<segment - 0x84
	if sign != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
