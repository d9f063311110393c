// Package worker runs audio chunks through the inference engine on a
// fixed pool of goroutines. It owns the pre-inference silence
// short-circuit, WAV wrapping, the per-chunk inference deadline, and the
// post-inference transcript filtering (no-speech probability and
// hallucinated-phrase removal).
package worker
