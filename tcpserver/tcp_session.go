package tcpserver

// Session handles one accepted connection. The server runs Handle in its own
// goroutine and forgets the session when Handle returns.
type Session interface {
	// ID returns the id the server assigned.
	ID() uint32

	// Handle serves the connection until it closes.
	Handle()

	// Close closes the connection so Handle returns. It must be safe to call
	// more than once and concurrently with Handle.
	Close() error
}
