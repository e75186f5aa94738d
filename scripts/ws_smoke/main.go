package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "tester", "display name to announce in the handshake")
	text := flag.String("text", "hello from smoke test", "chat text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	conn := websocket.NetConn(ctx, c, websocket.MessageText)
	defer conn.Close()

	id := uuid.NewString()
	send := func(payload string) error {
		if _, err := fmt.Fprintf(conn, "%s:%s\n", id, payload); err != nil {
			return fmt.Errorf("send: %w", err)
		}
		return nil
	}

	if _, err := fmt.Fprintf(conn, "%s:%s\n", id, *name); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	if err := send("say:" + *text); err != nil {
		return err
	}
	if err := send("?:"); err != nil {
		return err
	}

	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		line = strings.TrimRight(line, "\r\n")
		fmt.Printf("Received: %s\n", line)

		if strings.HasPrefix(line, "client.close:") {
			return fmt.Errorf("server closed the session")
		}
		if strings.HasPrefix(line, "available commands:") {
			return send("exit")
		}
	}
}
