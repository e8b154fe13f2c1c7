package session

// Stream is a non-blocking duplex byte stream. Read and Writev never wait:
// they return iox.ErrWouldBlock when no progress can be made right now. A
// zero-length Read with a nil error means the peer shut the stream down.
type Stream interface {
	Read(p []byte) (int, error)
	Writev(bufs [][]byte) (int, error)
	// Flush pushes out anything the stream itself buffers. It is called once
	// the outbound queue has fully drained.
	Flush() error
	Close() error
}
