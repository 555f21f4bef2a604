package session

import (
	"sync"

	"github.com/gorilla/websocket"
)

// socket is the subset of *websocket.Conn the session transport depends on,
// kept small so tests can substitute an in-memory pair instead of dialing
// a real server.
type socket interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

var dial = func(url string) (socket, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// link wraps a socket with a background reader goroutine. The tick loop is
// single-threaded and caller-driven, so incoming frames are buffered in a
// plain queue under a mutex and drained non-blockingly: the Go equivalent of
// the underlying transport's try_recv.
type link struct {
	conn socket

	mu    sync.Mutex
	queue [][]byte
	err   error

	closeOnce sync.Once
}

func newLink(url string) (*link, error) {
	conn, err := dial(url)
	if err != nil {
		return nil, err
	}
	l := &link{conn: conn}
	go l.readLoop()
	return l, nil
}

func (l *link) readLoop() {
	for {
		msgType, data, err := l.conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			if l.err == nil {
				l.err = err
			}
			l.mu.Unlock()
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		l.mu.Lock()
		l.queue = append(l.queue, data)
		l.mu.Unlock()
	}
}

func (l *link) write(data []byte) error {
	return l.conn.WriteMessage(websocket.BinaryMessage, data)
}

// tryRecvOne pops the oldest buffered frame, if any. ok is true only when a
// frame was popped; buffered frames are returned before any error. With an
// empty queue, a non-nil err means the underlying connection has failed.
func (l *link) tryRecvOne() (data []byte, err error, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) > 0 {
		data, l.queue = l.queue[0], l.queue[1:]
		return data, nil, true
	}
	return nil, l.err, false
}

// drainAll pops every buffered frame in arrival order.
func (l *link) drainAll() (msgs [][]byte, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	msgs, l.queue = l.queue, nil
	return msgs, l.err
}

func (l *link) close() {
	l.closeOnce.Do(func() {
		_ = l.conn.Close()
	})
}
