package core

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const defaultQueueSize = 64

// SessionOptions tunes the outbound side of a session.
type SessionOptions struct {
	QueueSize    int
	WriteTimeout time.Duration
}

// Session is a live connection bound to one identity for one connection lifetime.
// Outbound lines go through a bounded queue drained by a dedicated writer goroutine,
// so senders never block on a slow peer.
type Session struct {
	ID          string
	Identity    Identity
	Name        string
	RemoteAddr  string
	ConnectedAt time.Time

	conn         net.Conn
	out          chan string
	closing      chan struct{}
	done         chan struct{}
	closeOnce    sync.Once
	writeTimeout time.Duration
	dropped      atomic.Int64
}

// NewSession wraps conn and starts its writer goroutine.
func NewSession(conn net.Conn, id Identity, name string, opts SessionOptions) *Session {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	s := &Session{
		ID:           uuid.NewString(),
		Identity:     id,
		Name:         name,
		RemoteAddr:   remote,
		ConnectedAt:  time.Now(),
		conn:         conn,
		out:          make(chan string, size),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
		writeTimeout: opts.WriteTimeout,
	}
	go s.writeLoop()
	return s
}

// Send queues a line for delivery. It returns false when the session is closing
// or the queue is full (slow consumer); the line is dropped in both cases.
func (s *Session) Send(line string) bool {
	select {
	case <-s.closing:
		return false
	default:
	}

	select {
	case s.out <- line:
		return true
	case <-s.closing:
		return false
	default:
		s.dropped.Add(1)
		return false
	}
}

// Close stops accepting new lines, flushes what is queued and closes the
// connection. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
}

// Done is closed once the connection has been closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closing reports whether Close has been called.
func (s *Session) Closing() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Dropped returns how many lines were discarded because the queue was full.
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Session) writeLoop() {
	defer close(s.done)
	defer s.conn.Close()

	for {
		select {
		case line := <-s.out:
			if err := s.write(line); err != nil {
				s.Close()
				return
			}
		case <-s.closing:
			for {
				select {
				case line := <-s.out:
					if err := s.write(line); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) write(line string) error {
	if s.writeTimeout > 0 {
		if err := s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout)); err != nil {
			return err
		}
	}
	_, err := s.conn.Write([]byte(line + "\n"))
	return err
}
