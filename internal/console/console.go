package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/moderation"
)

const helpFlag = "--help"

// Options configures a Console.
type Options struct {
	Service   *moderation.Service
	ServerKV  *kv.Table
	Stats     *core.Stats
	Addr      func() string
	Version   string
	Copyright string
	Logger    *zerolog.Logger
}

type handler func(ctx context.Context, args []string, out io.Writer) error

type command struct {
	name        string
	description string
	run         handler
}

// Console executes operator commands of the form "<namespace>.<command> [args...]".
type Console struct {
	svc       *moderation.Service
	serverKV  *kv.Table
	stats     *core.Stats
	addr      func() string
	version   string
	copyright string
	log       *zerolog.Logger

	commands map[string]*command
}

// New builds a console with the full operator command set.
func New(opts Options) *Console {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	addr := opts.Addr
	if addr == nil {
		addr = func() string { return "" }
	}
	stats := opts.Stats
	if stats == nil {
		stats = &core.Stats{}
	}
	c := &Console{
		svc:       opts.Service,
		serverKV:  opts.ServerKV,
		stats:     stats,
		addr:      addr,
		version:   opts.Version,
		copyright: opts.Copyright,
		log:       logger,
		commands:  make(map[string]*command),
	}
	c.registerServer()
	c.registerInfo()
	return c
}

func (c *Console) add(name, description string, run handler) {
	c.commands[name] = &command{name: name, description: description, run: run}
}

// Names returns every command name, sorted.
func (c *Console) Names() []string {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one console line and writes its output to out.
func (c *Console) Execute(ctx context.Context, line string, out io.Writer) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	name := args[0]

	cmd, ok := c.commands[name]
	if !ok {
		return core.NewError(core.ErrCodeNotFound, fmt.Sprintf("attempted to execute command that does not exist. (%s)", name))
	}

	for _, arg := range args[1:] {
		if arg == helpFlag {
			fmt.Fprintf(out, "%s: %s\n", cmd.name, cmd.description)
			return nil
		}
	}

	c.log.Debug().Str("command", name).Strs("args", args[1:]).Msg("console command")
	c.stats.CommandsRun.Add(1)
	return cmd.run(ctx, args[1:], out)
}

// Run reads lines from in until EOF or ctx ends, printing a prompt before each.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprintf(out, "%s> ", c.svc.ServerName())
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("read console: %w", err)
			}
			return nil
		case line := <-lines:
			if err := c.Execute(ctx, line, out); err != nil {
				fmt.Fprintf(out, "error: %s\n", errorMessage(err))
			}
		}
	}
}

func errorMessage(err error) string {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}

func usage(text string) error {
	return core.NewError(core.ErrCodeBadRequest, "usage: "+text)
}
