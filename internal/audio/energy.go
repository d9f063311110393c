package audio

import "encoding/binary"

// MaxAmplitude returns the largest absolute sample value in a raw mono
// 16-bit little-endian PCM buffer. A trailing odd byte is ignored. Values
// under roughly 100 indicate the buffer is effectively silent; the result
// is only used for diagnostics, the inference engine makes the real call.
func MaxAmplitude(pcm []byte) int {
	max := 0
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int(int16(binary.LittleEndian.Uint16(pcm[i : i+2])))
		if sample < 0 {
			sample = -sample
		}
		if sample > max {
			max = sample
		}
	}
	return max
}
