package audio

import (
	"errors"
	"fmt"
)

// μ-law ⇄ linear PCM transcoding for telephony media.
//
// Contract:
// - Input is 8-bit μ-law samples as delivered by the telephony media stream
//   (8 kHz, one byte per sample).
// - Output is 16-bit little-endian PCM, exactly 2× the input length.
// - Pure table lookup, O(n), no allocation beyond the output slice.
// - The table is immutable; Transcode is safe for concurrent use.

// ErrEmptyInput is returned when a transcode is attempted on zero samples.
// Callers must not retry with the same input.
var ErrEmptyInput = errors.New("audio: empty input")

// InvalidAudioFormatError identifies the first offending sample of a
// malformed μ-law payload. Callers must not retry with the same bytes.
type InvalidAudioFormatError struct {
	Index int
	Value int
}

func (e *InvalidAudioFormatError) Error() string {
	return fmt.Sprintf("audio: invalid μ-law value at position %d: %d", e.Index, e.Value)
}

// mulawTable maps μ-law bytes to signed 16-bit PCM per the standard μ-law
// expansion curve. Lookup index is the sample byte plus 128 (wrapping), so the
// negative half of the curve occupies the upper half of the table.
var mulawTable = [256]int16{
	32124, 31100, 30076, 29052, 28028, 27004, 25980, 24956,
	23932, 22908, 21884, 20860, 19836, 18812, 17788, 16764,
	15996, 15484, 14972, 14460, 13948, 13436, 12924, 12412,
	11900, 11388, 10876, 10364, 9852, 9340, 8828, 8316,
	7932, 7676, 7420, 7164, 6908, 6652, 6396, 6140,
	5884, 5628, 5372, 5116, 4860, 4604, 4348, 4092,
	3900, 3772, 3644, 3516, 3388, 3260, 3132, 3004,
	2876, 2748, 2620, 2492, 2364, 2236, 2108, 1980,
	1884, 1820, 1756, 1692, 1628, 1564, 1500, 1436,
	1372, 1308, 1244, 1180, 1116, 1052, 988, 924,
	876, 844, 812, 780, 748, 716, 684, 652,
	620, 588, 556, 524, 492, 460, 428, 396,
	372, 356, 340, 324, 308, 292, 276, 260,
	244, 228, 212, 196, 180, 164, 148, 132,
	120, 112, 104, 96, 88, 80, 72, 64,
	56, 48, 40, 32, 24, 16, 8, 0,
	-32124, -31100, -30076, -29052, -28028, -27004, -25980, -24956,
	-23932, -22908, -21884, -20860, -19836, -18812, -17788, -16764,
	-15996, -15484, -14972, -14460, -13948, -13436, -12924, -12412,
	-11900, -11388, -10876, -10364, -9852, -9340, -8828, -8316,
	-7932, -7676, -7420, -7164, -6908, -6652, -6396, -6140,
	-5884, -5628, -5372, -5116, -4860, -4604, -4348, -4092,
	-3900, -3772, -3644, -3516, -3388, -3260, -3132, -3004,
	-2876, -2748, -2620, -2492, -2364, -2236, -2108, -1980,
	-1884, -1820, -1756, -1692, -1628, -1564, -1500, -1436,
	-1372, -1308, -1244, -1180, -1116, -1052, -988, -924,
	-876, -844, -812, -780, -748, -716, -684, -652,
	-620, -588, -556, -524, -492, -460, -428, -396,
	-372, -356, -340, -324, -308, -292, -276, -260,
	-244, -228, -212, -196, -180, -164, -148, -132,
	-120, -112, -104, -96, -88, -80, -72, -64,
	-56, -48, -40, -32, -24, -16, -8, 0,
}

// Decode returns the linear PCM value for a single μ-law byte.
func Decode(b byte) int16 {
	return mulawTable[b+128]
}

// Transcode converts μ-law samples to 16-bit little-endian PCM.
// The output length is exactly 2× the input length.
func Transcode(mulaw []byte) ([]byte, error) {
	if len(mulaw) == 0 {
		return nil, ErrEmptyInput
	}

	out := make([]byte, 2*len(mulaw))
	for i, b := range mulaw {
		v := mulawTable[b+128]
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out, nil
}

// TranscodeValues converts μ-law samples carried as integers (e.g. decoded
// from JSON in the call-simulation path) after range-validating each one.
// Values outside [0,255] fail with InvalidAudioFormatError naming the
// offending index and value.
func TranscodeValues(samples []int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}

	mulaw := make([]byte, len(samples))
	for i, v := range samples {
		if v < 0 || v > 255 {
			return nil, &InvalidAudioFormatError{Index: i, Value: v}
		}
		mulaw[i] = byte(v)
	}
	return Transcode(mulaw)
}
