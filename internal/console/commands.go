package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
)

// KeyPort stores a listen port chosen from the console; it applies on restart.
const KeyPort = "server.port"

func (c *Console) registerServer() {
	c.add("server.help", "display help for all commands, or supply a command name for a specific command.", c.help)
	c.add("server.port", "show the listen address, or save a port to use after restart.", c.port)
	c.add("server.send", "send an action to be executed on the client. usage: server.send <user-id> <action> [args...]", c.send)
	c.add("server.clients", "list all current clients names, ids and network information.", c.clients)
	c.add("server.mute", "mute a specific user for a specific duration. usage: server.mute <user-id> <duration> [reason]", c.mute)
	c.add("server.unmute", "unmute a specific user.", c.unmute)
	c.add("server.globalsay", "send a message, prefixed by '[Server]', to all connected clients. {key} expands server values.", c.globalSay)
	c.add("server.dmsay", "send a private message to a specific user.", c.dmSay)
	c.add("server.kickall", "kick all clients and stop accepting new connections until server.accepting true.", c.kickAll)
	c.add("server.accepting", "get or set whether the server is accepting new connections.", c.accepting)
	c.add("server.hostname", "display the server's hostname.", c.hostname)
	c.add("server.ban", "ban a specific user. usage: server.ban <user-id> [reason]", c.ban)
	c.add("server.unban", "unban a specific user.", c.unban)
	c.add("server.capacity", "get or set the maximum capacity of the server.", c.capacity)
	c.add("server.store", "fetch or save a value saved on the server. usage: server.store -f|-s <key> [value]", c.store)
	c.add("server.grant", "grant a specific user a permission.", c.grant)
	c.add("server.revoke", "revoke a permission from a user.", c.revoke)
	c.add("visual.name", "change the server name that clients will see.", c.visualName)
}

func (c *Console) registerInfo() {
	c.add("info.owner", "get or set the server owner string.", c.infoValue(kv.KeyOwner))
	c.add("info.email", "get or set the server e-mail.", c.infoValue(kv.KeyEmail))
	c.add("info.motd", "get or set the message displayed when a client connects (message of the day).", c.infoValue(kv.KeyMOTD))
	c.add("info.copyright", "display the copyright information about this server build.", c.copyrightInfo)
}

func (c *Console) help(_ context.Context, args []string, out io.Writer) error {
	if len(args) == 1 {
		cmd, ok := c.commands[args[0]]
		if !ok {
			return core.NewError(core.ErrCodeNotFound, fmt.Sprintf("no command named '%s'", args[0]))
		}
		fmt.Fprintf(out, "%s: %s\n", cmd.name, cmd.description)
		return nil
	}
	for _, name := range c.Names() {
		fmt.Fprintf(out, "%s: %s\n", name, c.commands[name].description)
	}
	return nil
}

func (c *Console) port(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintf(out, "server.port: %s\n", c.addr())
		if saved := c.serverKV.Fetch(KeyPort); saved != "" {
			fmt.Fprintf(out, "saved port for next start: %s\n", saved)
		}
		return nil
	}
	port, err := strconv.Atoi(args[0])
	if err != nil || port <= 0 || port > 65535 {
		return core.NewError(core.ErrCodeBadRequest, "server.port must be a number between 1 and 65535.")
	}
	c.serverKV.Set(ctx, KeyPort, strconv.Itoa(port))
	fmt.Fprintf(out, "server.port set to %d, it applies after a restart.\n", port)
	return nil
}

func (c *Console) send(_ context.Context, args []string, out io.Writer) error {
	if len(args) < 2 {
		return usage("server.send <user-id> <action> [args...]")
	}
	id, err := core.ParseIdentity(args[0])
	if err != nil {
		return core.NewError(core.ErrCodeBadRequest, "the user-id isn't a valid uuid.")
	}
	if err := c.svc.Send(id, args[1], strings.Join(args[2:], ":")); err != nil {
		return err
	}
	fmt.Fprintf(out, "sent '%s' to %s\n", args[1], id)
	return nil
}

func (c *Console) clients(ctx context.Context, _ []string, out io.Writer) error {
	infos := c.svc.Clients(ctx)
	if len(infos) == 0 {
		fmt.Fprintln(out, "there is nobody connected")
		return nil
	}
	for _, info := range infos {
		muted := "no"
		if info.Muted {
			muted = info.MuteRemaining
		}
		fmt.Fprintf(out, "%s(%s) - %s, muted: %s, permissions: %s (connected %s)\n",
			info.Name, info.Identity, info.RemoteAddr, muted, info.Permissions, info.ConnectedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func (c *Console) mute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 2 {
		return usage("server.mute <user-id> <duration> [reason]")
	}
	id, err := c.svc.Resolve(args[0])
	if err != nil {
		return err
	}
	rec, err := c.svc.Mute(ctx, id, args[1], strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "muted %s until %s\n", rec.Name, rec.MutedUntil.Format("2006-01-02 15:04:05"))
	return nil
}

func (c *Console) unmute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usage("server.unmute <user-id>")
	}
	id, err := c.svc.Resolve(args[0])
	if err != nil {
		return err
	}
	rec, err := c.svc.Unmute(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "unmuted %s\n", rec.Name)
	return nil
}

func (c *Console) globalSay(_ context.Context, args []string, out io.Writer) error {
	n, err := c.svc.Broadcast(strings.Join(args, " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "delivered to %d clients\n", n)
	return nil
}

func (c *Console) dmSay(_ context.Context, args []string, out io.Writer) error {
	if len(args) < 2 {
		return usage("server.dmsay <user-id> <message>")
	}
	if err := c.svc.PrivateMessage("", args[0], strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Fprintln(out, "message sent")
	return nil
}

func (c *Console) kickAll(_ context.Context, _ []string, out io.Writer) error {
	n := c.svc.KickAll()
	fmt.Fprintf(out, "kicked %d clients, no longer accepting connections\n", n)
	return nil
}

func (c *Console) accepting(_ context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintf(out, "server.accepting: %t\n", c.svc.Accepting())
		return nil
	}
	open, err := strconv.ParseBool(args[0])
	if err != nil {
		return core.NewError(core.ErrCodeBadRequest, fmt.Sprintf("'%s' is not a valid boolean value.", args[0]))
	}
	c.svc.SetAccepting(open)
	fmt.Fprintf(out, "server.accepting: %t\n", open)
	return nil
}

func (c *Console) hostname(_ context.Context, args []string, out io.Writer) error {
	if len(args) > 0 {
		return core.NewError(core.ErrCodeBadRequest, "the hostname is read-only; change it on the host system.")
	}
	name, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("hostname: %w", err)
	}
	fmt.Fprintln(out, name)
	return nil
}

func (c *Console) ban(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 1 {
		return usage("server.ban <user-id> [reason]")
	}
	id, err := c.svc.Resolve(args[0])
	if err != nil {
		return err
	}
	rec, err := c.svc.Ban(ctx, id, strings.Join(args[1:], " "))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return core.NewError(core.ErrCodeNotFound, fmt.Sprintf("cannot ban '%s', no user is assigned to that id.", args[0]))
		}
		return err
	}
	fmt.Fprintf(out, "banned %s (%s)\n", rec.Name, rec.BanReason)
	return nil
}

func (c *Console) unban(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 {
		return usage("server.unban <user-id>")
	}
	id, err := core.ParseIdentity(args[0])
	if err != nil {
		return core.NewError(core.ErrCodeBadRequest, "failed to parse user-id.")
	}
	rec, err := c.svc.Unban(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "unbanned %s\n", rec.Name)
	return nil
}

func (c *Console) capacity(_ context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintf(out, "server.capacity: %d\n", c.svc.Capacity())
		return nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return core.NewError(core.ErrCodeBadRequest, fmt.Sprintf("failed to parse %s as an integer.", args[0]))
	}
	if err := c.svc.SetCapacity(n); err != nil {
		return err
	}
	fmt.Fprintf(out, "server.capacity: %d\n", n)
	return nil
}

func (c *Console) store(ctx context.Context, args []string, out io.Writer) error {
	if len(args) < 2 {
		return usage("server.store -f|-s <key> [value]")
	}
	key := args[1]
	switch args[0] {
	case "-f":
		if !c.serverKV.Query(key) {
			return core.NewError(core.ErrCodeNotFound, fmt.Sprintf("cannot fetch '%s', it has no value or doesn't exist.", key))
		}
		fmt.Fprintf(out, "%s: %s\n", key, c.serverKV.Fetch(key))
	case "-s":
		if len(args) < 3 {
			return usage("server.store -s <key> <value>")
		}
		c.serverKV.Set(ctx, key, strings.Join(args[2:], " "))
		fmt.Fprintf(out, "saved %s\n", key)
	default:
		return core.NewError(core.ErrCodeBadRequest, fmt.Sprintf("unknown option [%s]. available options are [-f, -s]", args[0]))
	}
	return nil
}

func (c *Console) grant(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 2 {
		return usage("server.grant <user-id> <permission>")
	}
	id, err := c.svc.Resolve(args[0])
	if err != nil {
		return err
	}
	rec, err := c.svc.Grant(ctx, "", id, args[1])
	if err != nil {
		return err
	}
	c.log.Info().Str("target", rec.Name).Str("permission", args[1]).Msg("console granted permission")
	fmt.Fprintf(out, "%s: %s\n", rec.Name, rec.Permissions)
	return nil
}

func (c *Console) revoke(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 2 {
		return usage("server.revoke <user-id> <permission>")
	}
	id, err := c.svc.Resolve(args[0])
	if err != nil {
		return err
	}
	rec, err := c.svc.Revoke(ctx, "", id, args[1])
	if err != nil {
		return err
	}
	c.log.Info().Str("target", rec.Name).Str("permission", args[1]).Msg("console revoked permission")
	fmt.Fprintf(out, "%s: %s\n", rec.Name, rec.Permissions)
	return nil
}

func (c *Console) visualName(_ context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintf(out, "visual.name: %s\n", c.svc.ServerName())
		return nil
	}
	name := strings.Join(args, " ")
	c.svc.SetServerName(name)
	fmt.Fprintf(out, "visual.name: %s\n", name)
	return nil
}

func (c *Console) infoValue(key string) handler {
	return func(ctx context.Context, args []string, out io.Writer) error {
		if len(args) == 0 {
			fmt.Fprintf(out, "%s: %s\n", key, c.serverKV.Fetch(key))
			return nil
		}
		c.serverKV.Set(ctx, key, strings.Join(args, " "))
		fmt.Fprintf(out, "%s: %s\n", key, c.serverKV.Fetch(key))
		return nil
	}
}

func (c *Console) copyrightInfo(_ context.Context, _ []string, out io.Writer) error {
	fmt.Fprintf(out, "%s (%s)\n", c.copyright, c.version)
	return nil
}
