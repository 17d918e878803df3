package channel

// Pipe moves every message from src to dst in a background goroutine,
// preserving order. When src closes and drains, dst is closed if closeDst
// is set. The component runtime uses Pipe to splice the internal put-channel
// into the out-channel on system-ready.
//
// The returned channel is closed when the pipe exits.
func Pipe(src, dst *Chan, closeDst bool) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			msg, ok := src.Take()
			if !ok {
				if closeDst {
					dst.Close()
				}
				return
			}
			if err := dst.Put(msg); err != nil {
				// Destination closed underneath us; nothing left to deliver to
				return
			}
		}
	}()
	return done
}
