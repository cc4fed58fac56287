package proxy

import (
	"io"
	"net"
	"sync"
)

// halfCloser is satisfied by *net.TCPConn. Half-closing lets one direction
// drain after the other side finishes writing.
type halfCloser interface {
	CloseWrite() error
}

// relay shuttles bytes between the two connections until both directions
// are exhausted or either side fails. Both connections are closed before it
// returns.
func relay(clientConn, upstreamConn net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)

	pipe := func(dst, src net.Conn) {
		defer wg.Done()
		io.Copy(dst, src)

		if hc, ok := dst.(halfCloser); ok {
			hc.CloseWrite()
		} else {
			dst.Close()
		}
	}

	go pipe(upstreamConn, clientConn)
	go pipe(clientConn, upstreamConn)
	wg.Wait()

	clientConn.Close()
	upstreamConn.Close()
}
