package voice

import "encoding/binary"

const (
	// SampleRate matches the upstream transcription configuration.
	SampleRate = 16000

	// FrameSamples is the capture cadence: one dispatched chunk per this
	// many samples (~256ms at 16 kHz).
	FrameSamples = 4096
)

// ConvertToPCM16 encodes float32 samples in [-1, 1] as 16-bit signed
// little-endian PCM, clamping out-of-range values.
func ConvertToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}

		var value int16
		if sample < 0 {
			value = int16(sample * 0x8000)
		} else {
			value = int16(sample * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(value))
	}
	return out
}

// PCM16ToFloat32 decodes 16-bit signed little-endian PCM into float32
// samples in [-1, 1]. Trailing odd bytes are ignored.
func PCM16ToFloat32(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		value := int16(binary.LittleEndian.Uint16(data[i*2:]))
		if value < 0 {
			out[i] = float32(value) / 0x8000
		} else {
			out[i] = float32(value) / 0x7FFF
		}
	}
	return out
}
