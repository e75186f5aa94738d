package command

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/lang"
	"github.com/vovakirdan/linechat-server/internal/moderation"
)

// ErrUnknownSender is returned when a frame does not belong to the sending session.
var ErrUnknownSender = core.NewError(core.ErrCodeNotFound, "unknown sender")

// usageArg as the only argument asks a command for its usage line.
const usageArg = "/"

// Command is a client command gated by permissions.
type Command struct {
	Name        string
	Usage       string
	Description string
	Permissions []string
	Run         func(c *Context) error
}

// Context carries everything a handler needs for one invocation.
type Context struct {
	context.Context

	Name    string
	Raw     string
	Args    []string
	Session *core.Session
	Record  *core.ClientRecord

	d *Dispatcher
}

// Reply sends a line back to the invoking session.
func (c *Context) Reply(line string) {
	c.Session.Send(line)
}

// Replyf formats and sends a line back to the invoking session.
func (c *Context) Replyf(format string, args ...any) {
	c.Session.Send(fmt.Sprintf(format, args...))
}

// Service returns the moderation service.
func (c *Context) Service() *moderation.Service { return c.d.svc }

// Options configures a Dispatcher.
type Options struct {
	Service  *moderation.Service
	ServerKV *kv.Table
	ClientKV *kv.Table
	Stats    *core.Stats
	Logger   *zerolog.Logger
}

// Dispatcher routes client frames to registered commands.
type Dispatcher struct {
	svc      *moderation.Service
	serverKV *kv.Table
	clientKV *kv.Table
	stats    *core.Stats
	log      *zerolog.Logger

	commands map[string]*Command
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	stats := opts.Stats
	if stats == nil {
		stats = &core.Stats{}
	}
	return &Dispatcher{
		svc:      opts.Service,
		serverKV: opts.ServerKV,
		clientKV: opts.ClientKV,
		stats:    stats,
		log:      logger,
		commands: make(map[string]*Command),
	}
}

// Register adds cmd. Unknown permission names and duplicate names are rejected.
func (d *Dispatcher) Register(cmd Command) error {
	if cmd.Name == "" || cmd.Run == nil {
		return fmt.Errorf("register command: name and handler are required")
	}
	if strings.ContainsAny(cmd.Name, ": \t") {
		return fmt.Errorf("register command %q: name must not contain ':' or whitespace", cmd.Name)
	}
	if _, exists := d.commands[cmd.Name]; exists {
		return fmt.Errorf("register command %q: already registered", cmd.Name)
	}
	for _, perm := range cmd.Permissions {
		if err := core.ValidatePermission(perm); err != nil {
			return fmt.Errorf("register command %q: %w", cmd.Name, err)
		}
	}
	if len(cmd.Permissions) == 0 {
		d.log.Debug().Str("command", cmd.Name).Msg("command requires no permissions")
	}
	c := cmd
	d.commands[cmd.Name] = &c
	return nil
}

// Lookup returns the command registered under name.
func (d *Dispatcher) Lookup(name string) (*Command, bool) {
	cmd, ok := d.commands[name]
	return cmd, ok
}

// Names returns the registered command names in order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle processes one frame from sender. Only ErrUnknownSender is returned;
// every other failure is answered on the session.
func (d *Dispatcher) Handle(ctx context.Context, sender *core.Session, frame Frame) error {
	if frame.Identity != sender.Identity {
		return ErrUnknownSender
	}
	if current, ok := d.svc.Registry().Get(frame.Identity); !ok || current != sender {
		return ErrUnknownSender
	}
	d.stats.MessagesReceived.Add(1)

	name, args, chat := frame.split(func(s string) bool {
		_, ok := d.commands[s]
		return ok
	})
	if chat {
		name = CmdSay
	}

	strs := d.svc.Strings()
	cmd, ok := d.commands[name]
	if !ok {
		sender.Send(strs.Get(lang.CmdNotRecognized, name))
		return nil
	}

	rec, err := d.svc.Book().Get(ctx, sender.Identity)
	if err != nil {
		d.log.Error().Err(err).Str("identity", sender.Identity.String()).Msg("failed to load record for command")
		sender.Send(strs.Get(lang.CmdInternalError, name))
		return nil
	}

	for _, perm := range cmd.Permissions {
		if !rec.Permissions.Has(perm) {
			d.log.Info().
				Str("identity", sender.Identity.String()).
				Str("name", sender.Name).
				Str("command", name).
				Msg("command rejected: insufficient permissions")
			sender.Send(strs.Get(lang.CmdInsufficient, name))
			return nil
		}
	}

	c := &Context{
		Context: ctx,
		Name:    name,
		Raw:     args,
		Args:    strings.Fields(args),
		Session: sender,
		Record:  rec,
		d:       d,
	}
	if !chat && len(c.Args) == 1 && c.Args[0] == usageArg && cmd.Usage != "" {
		c.Reply(strs.Get(lang.CmdUsage, cmd.Usage))
		return nil
	}

	d.run(cmd, c)
	return nil
}

func (d *Dispatcher) run(cmd *Command, c *Context) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().
				Interface("panic", r).
				Str("command", cmd.Name).
				Bytes("stack", debug.Stack()).
				Msg("command handler panicked")
			c.Reply(d.svc.Strings().Get(lang.CmdInternalError, cmd.Name))
		}
	}()

	if cmd.Name != CmdSay {
		d.stats.CommandsRun.Add(1)
		d.log.Debug().
			Str("name", c.Session.Name).
			Str("command", cmd.Name).
			Strs("args", c.Args).
			Msg("executing command")
	}

	if err := cmd.Run(c); err != nil {
		c.Reply(replyFor(err))
	}
}

// replyFor turns a handler error into the line shown to the client.
func replyFor(err error) string {
	var ce *core.CoreError
	if errors.As(err, &ce) {
		return ce.Message
	}
	return err.Error()
}
