package command

import (
	"fmt"
	"strings"

	"github.com/vovakirdan/linechat-server/internal/core"
	"github.com/vovakirdan/linechat-server/internal/kv"
	"github.com/vovakirdan/linechat-server/internal/lang"
)

// Built-in command names.
const (
	CmdSay     = "say"
	CmdHelp    = "?"
	CmdHelpAlt = "help"
	CmdBan     = "ban"
	CmdUnban   = "unban"
	CmdMute    = "mute"
	CmdUnmute  = "unmute"
	CmdPM      = "pm"
	CmdSave    = "save"
	CmdFetch   = "fetch"
	CmdKickAll = "kickall"
	CmdGrant   = "grant"
	CmdRevoke  = "revoke"
	CmdMOTD    = "motd"
	CmdOwner   = "owner"
	CmdEmail   = "email"
)

// RegisterBuiltins installs the standard client command set.
func RegisterBuiltins(d *Dispatcher) error {
	builtins := []Command{
		{Name: CmdSay, Usage: ":say [message]", Description: "send a chat message", Permissions: []string{core.PermSay}, Run: d.say},
		{Name: CmdHelp, Description: "list commands", Run: d.help},
		{Name: CmdHelpAlt, Description: "list commands", Run: d.help},
		{Name: CmdBan, Usage: ":ban <user> [reason]", Description: "ban a user", Permissions: []string{core.PermBan}, Run: d.ban},
		{Name: CmdUnban, Usage: ":unban <user-id>", Description: "lift a ban", Permissions: []string{core.PermBan}, Run: d.unban},
		{Name: CmdMute, Usage: ":mute <user> <duration> [reason]", Description: "mute a user", Permissions: []string{core.PermMute}, Run: d.mute},
		{Name: CmdUnmute, Usage: ":unmute <user>", Description: "lift a mute", Permissions: []string{core.PermMute}, Run: d.unmute},
		{Name: CmdPM, Usage: ":pm <user> <message>", Description: "private message", Permissions: []string{core.PermSay}, Run: d.pm},
		{Name: CmdSave, Usage: ":save <key> <value>", Description: "store a value", Permissions: []string{core.PermStore}, Run: d.save},
		{Name: CmdFetch, Usage: ":fetch <key>", Description: "fetch a stored value", Permissions: []string{core.PermStore}, Run: d.fetch},
		{Name: CmdKickAll, Description: "disconnect everyone and close admission", Permissions: []string{core.PermAdmin}, Run: d.kickAll},
		{Name: CmdGrant, Usage: ":grant <user> <permission>", Description: "grant a permission", Permissions: []string{core.PermAdmin}, Run: d.grant},
		{Name: CmdRevoke, Usage: ":revoke <user> <permission>", Description: "revoke a permission", Permissions: []string{core.PermAdmin}, Run: d.revoke},
		{Name: CmdMOTD, Description: "message of the day", Run: d.serverValue(kv.KeyMOTD)},
		{Name: CmdOwner, Description: "server owner", Run: d.serverValue(kv.KeyOwner)},
		{Name: CmdEmail, Description: "server contact e-mail", Run: d.serverValue(kv.KeyEmail)},
	}
	for _, cmd := range builtins {
		if err := d.Register(cmd); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) say(c *Context) error {
	text := strings.TrimSpace(c.Raw)
	if text == "" {
		return nil
	}

	now := d.svc.Now()
	if c.Record.IsMuted(now) {
		c.Reply(d.svc.Strings().Get(lang.ChatMuted, core.FormatDuration(c.Record.MuteRemaining(now))))
		return nil
	}

	d.log.Info().Str("name", c.Session.Name).Str("text", text).Msg("chat")
	n := d.svc.Registry().Broadcast(fmt.Sprintf("%s> %s", c.Session.Name, text), c.Session)
	d.stats.ChatsDelivered.Add(int64(n))
	return nil
}

func (d *Dispatcher) help(c *Context) error {
	names := append(d.Names(), ExitPayload)
	c.Reply(d.svc.Strings().Get(lang.CmdHelp, strings.Join(names, ", ")))
	return nil
}

func (d *Dispatcher) ban(c *Context) error {
	if len(c.Args) < 1 {
		return usage(c)
	}
	id, err := d.svc.Resolve(c.Args[0])
	if err != nil {
		return err
	}
	if id == c.Session.Identity {
		c.Reply("you cannot ban yourself.")
		return nil
	}
	rec, err := d.svc.Ban(c, id, strings.Join(c.Args[1:], " "))
	if err != nil {
		return err
	}
	d.log.Info().Str("by", c.Session.Name).Str("target", rec.Name).Msg("user banned")
	c.Reply(d.svc.Strings().Get(lang.ModBanResponse, rec.Name))
	return nil
}

func (d *Dispatcher) unban(c *Context) error {
	if len(c.Args) != 1 {
		return usage(c)
	}
	id, err := core.ParseIdentity(c.Args[0])
	if err != nil {
		return fmt.Errorf("unknown user '%s'", c.Args[0])
	}
	rec, err := d.svc.Unban(c, id)
	if err != nil {
		return err
	}
	c.Replyf("unbanned %s.", rec.Name)
	return nil
}

func (d *Dispatcher) mute(c *Context) error {
	if len(c.Args) < 2 {
		return usage(c)
	}
	id, err := d.svc.Resolve(c.Args[0])
	if err != nil {
		return err
	}
	if id == c.Session.Identity {
		c.Reply("you cannot mute yourself.")
		return nil
	}
	rec, err := d.svc.Mute(c, id, c.Args[1], strings.Join(c.Args[2:], " "))
	if err != nil {
		return err
	}
	c.Replyf("muted %s for %s.", rec.Name, core.FormatDuration(rec.MuteRemaining(d.svc.Now())))
	return nil
}

func (d *Dispatcher) unmute(c *Context) error {
	if len(c.Args) != 1 {
		return usage(c)
	}
	id, err := d.svc.Resolve(c.Args[0])
	if err != nil {
		return err
	}
	rec, err := d.svc.Unmute(c, id)
	if err != nil {
		return err
	}
	c.Replyf("unmuted %s.", rec.Name)
	return nil
}

func (d *Dispatcher) pm(c *Context) error {
	if len(c.Args) < 2 {
		return usage(c)
	}
	if c.Record.IsMuted(d.svc.Now()) {
		c.Reply(d.svc.Strings().Get(lang.ChatMuted, core.FormatDuration(c.Record.MuteRemaining(d.svc.Now()))))
		return nil
	}
	return d.svc.PrivateMessage(c.Session.Name, c.Args[0], strings.Join(c.Args[1:], " "))
}

func (d *Dispatcher) save(c *Context) error {
	if len(c.Args) < 2 {
		return usage(c)
	}
	key, value := c.Args[0], strings.Join(c.Args[1:], " ")
	if !d.clientKV.Insert(c, key, value) {
		c.Replyf("'%s' already has a value.", key)
		return nil
	}
	c.Reply("saved successfully")
	return nil
}

func (d *Dispatcher) fetch(c *Context) error {
	if len(c.Args) != 1 {
		return usage(c)
	}
	key := c.Args[0]
	if !d.clientKV.Query(key) {
		c.Replyf("cannot fetch '%s', it has no value or doesn't exist.", key)
		return nil
	}
	c.Replyf("%s: %s", key, d.clientKV.Fetch(key))
	return nil
}

func (d *Dispatcher) kickAll(c *Context) error {
	d.log.Warn().Str("by", c.Session.Name).Msg("kickall requested by client")
	d.svc.KickAll()
	return nil
}

func (d *Dispatcher) grant(c *Context) error {
	return d.permission(c, true)
}

func (d *Dispatcher) revoke(c *Context) error {
	return d.permission(c, false)
}

func (d *Dispatcher) permission(c *Context, grant bool) error {
	if len(c.Args) != 2 {
		return usage(c)
	}
	id, err := d.svc.Resolve(c.Args[0])
	if err != nil {
		return err
	}
	if grant {
		_, err = d.svc.Grant(c, c.Session.Name, id, c.Args[1])
	} else {
		_, err = d.svc.Revoke(c, c.Session.Name, id, c.Args[1])
	}
	if err != nil {
		return err
	}
	c.Reply("done.")
	return nil
}

func (d *Dispatcher) serverValue(key string) func(c *Context) error {
	return func(c *Context) error {
		value := ""
		if d.serverKV != nil {
			value = d.serverKV.Fetch(key)
		}
		if value == "" {
			c.Replyf("%s: not set", c.Name)
			return nil
		}
		c.Replyf("%s: %s", c.Name, value)
		return nil
	}
}

func usage(c *Context) error {
	cmd, ok := c.d.Lookup(c.Name)
	if !ok || cmd.Usage == "" {
		return core.ErrBadRequest
	}
	c.Reply(c.d.svc.Strings().Get(lang.CmdUsage, cmd.Usage))
	return nil
}
