// Package transcode converts compressed audio containers into the raw
// mono 16-bit PCM used by the rest of the pipeline. Conversion shells out
// to ffmpeg under a timeout; format detection sniffs the EBML magic bytes
// with the HTTP content type as a fallback.
package transcode
