package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address, or host:port for raw TCP")
	name := flag.String("name", "cli-user", "display name")
	id := flag.String("id", "", "identity uuid (random when empty)")
	flag.Parse()

	identity := *id
	if identity == "" {
		identity = uuid.NewString()
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, err := dial(ctx, *addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s:%s\n", identity, *name); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	fmt.Printf("Connected to %s as %s (%s)\n", *addr, *name, identity)
	fmt.Println("Type messages or :commands and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(conn)
	}()

	writeLoop(ctx, conn, identity)

	fmt.Fprintf(conn, "%s:exit\n", identity)
	return nil
}

func dial(ctx context.Context, addr string) (net.Conn, error) {
	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		c, _, err := websocket.Dial(ctx, addr, nil)
		if err != nil {
			return nil, err
		}
		return websocket.NetConn(context.WithoutCancel(ctx), c, websocket.MessageText), nil
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func readLoop(conn net.Conn) {
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			printLine(strings.TrimRight(line, "\r\n"))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				log.Printf("read error: %v", err)
			}
			return
		}
	}
}

// printLine renders client actions in a readable form.
func printLine(line string) {
	switch {
	case strings.HasPrefix(line, "client.settitle:"):
		fmt.Printf("== %s ==\n", strings.TrimPrefix(line, "client.settitle:"))
	case strings.HasPrefix(line, "client.close:"):
		fmt.Println("server closed the connection")
	default:
		fmt.Println(line)
	}
}

func writeLoop(ctx context.Context, conn net.Conn, identity string) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			// ":cmd args" is sent as "cmd:args"; anything else is chat.
			if strings.HasPrefix(text, ":") {
				head, args, _ := strings.Cut(text[1:], " ")
				text = head + ":" + args
			}
			if _, err := fmt.Fprintf(conn, "%s:%s\n", identity, text); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
