package core

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newPipeSession returns a session on one end of a pipe and a reader on the other.
func newPipeSession(t *testing.T, name string) (*Session, *bufio.Reader) {
	t.Helper()

	server, client := net.Pipe()
	s := NewSession(server, uuid.New(), name, SessionOptions{WriteTimeout: time.Second})
	t.Cleanup(func() {
		s.Close()
		_ = client.Close()
	})
	return s, bufio.NewReader(client)
}

func mustReadLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line: strings.TrimRight(line, "\r\n"), err: err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("read line: %v", res.err)
		}
		return res.line
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for line")
	}
	return ""
}
