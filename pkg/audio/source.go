package audio

// Source is a producer of captured audio phrases.
//
// Clips returns a receive-only channel that yields one Clip per spoken
// phrase. The channel is closed when the source stops, either because Close
// was called or because the underlying device failed. Implementations must
// not block indefinitely on a slow consumer; they may drop clips instead.
type Source interface {
	// Clips returns the phrase stream. The same channel is returned on every
	// call.
	Clips() <-chan Clip

	// Close stops capture and releases the underlying device. The Clips
	// channel is closed once any in-flight phrase has been emitted. Calling
	// Close more than once is safe.
	Close() error
}
