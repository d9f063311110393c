package transcode

import "strings"

// ebmlMagic is the leading byte sequence of an EBML document, which both
// WebM and Matroska containers start with.
var ebmlMagic = []byte{0x1A, 0x45, 0xDF, 0xA3}

// NeedsConversion reports whether an uploaded audio body should be run
// through the transcoder before inference. Detection uses the EBML magic
// bytes at the head of the payload, falling back to the declared content
// type; raw PCM uploads match neither.
func NeedsConversion(data []byte, contentType string) bool {
	if len(data) >= len(ebmlMagic) {
		match := true
		for i, b := range ebmlMagic {
			if data[i] != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return strings.Contains(strings.ToLower(contentType), "webm")
}
