package audio

// Drain reads from ch until it is closed, discarding all values. Use it when
// a producer must be allowed to finish but its output is no longer wanted.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
