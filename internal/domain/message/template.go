// internal/domain/message/template.go
package message

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"guild_scheduler_bot/internal/domain/discord"
)

// tokenPattern matches "{name}" and "{name:argument}". Arguments cannot contain braces,
// so nested or unbalanced markers are left untouched.
var tokenPattern = regexp.MustCompile(`\{([A-Za-z_]+)(?::([^{}]*))?\}`)

// memberNameMaxLen bounds a username inserted by {user:..}.
const memberNameMaxLen = 64

// Context is everything a template may refer to.
type Context struct {
	GuildName string
	// Guild supplies channels and roles for {channel:..} and {role:..}.
	Guild *discord.Guild
	// Members is the fetched member list for {user:..} and {usermention:..}.
	Members []discord.Member
	// Member is the member the event is about (join/leave); used by the bare
	// {username} and {usermention} tokens.
	Member *discord.Member
	// Vars are bare data tokens such as {word}. Values must already be sanitized.
	Vars map[string]string
}

// Result is send-ready content.
type Result struct {
	Text       string
	Embeds     []discord.Embed
	Unresolved []string
}

// Message converts the result into an outgoing platform message.
func (r Result) Message(allowed discord.AllowedMentions) discord.OutgoingMessage {
	return discord.OutgoingMessage{Text: r.Text, Embeds: r.Embeds, AllowedMentions: allowed}
}

// Resolve expands placeholders in template.
//
// Tokens are found in a single left-to-right scan of the template and each one is
// matched against the productions below, first match wins:
//
//	{gif:<url>}          removed from the text, appended to Embeds in source order
//	{server}             guild name
//	{everyone} {here}    platform-wide mention tokens
//	{channel:<name>}     channel mention, caseless exact name
//	{role:<name>}        role mention, caseless exact name
//	{user:<name>}        plain username of a member, sanitized (no ping)
//	{usermention:<name>} mention of a member
//	{username}           event member's username
//	{usermention}        mention of the event member
//	{<var>}              Context.Vars
//
// Substituted values are never scanned again. A token that does not resolve stays in
// the text verbatim and is listed in Unresolved. The final text is trimmed.
func Resolve(template string, ctx Context) Result {
	var (
		res  Result
		b    strings.Builder
		last int
		fold = cases.Fold()
	)
	equal := func(x, y string) bool { return fold.String(x) == fold.String(y) }

	for _, idx := range tokenPattern.FindAllStringSubmatchIndex(template, -1) {
		raw := template[idx[0]:idx[1]]
		name := template[idx[2]:idx[3]]
		hasArg := idx[4] >= 0
		arg := ""
		if hasArg {
			arg = template[idx[4]:idx[5]]
		}

		b.WriteString(template[last:idx[0]])
		last = idx[1]

		var (
			out string
			ok  bool
		)
		if hasArg {
			if name == "gif" {
				if u, valid := gifURL(arg); valid {
					res.Embeds = append(res.Embeds, discord.Embed{ImageURL: u})
					continue
				}
			} else {
				out, ok = resolveNamed(name, strings.TrimSpace(arg), ctx, equal)
			}
		} else {
			out, ok = resolveBare(name, ctx)
		}

		if !ok {
			res.Unresolved = append(res.Unresolved, raw)
			out = raw
		}
		b.WriteString(out)
	}
	b.WriteString(template[last:])

	res.Text = strings.TrimSpace(b.String())
	return res
}

func resolveNamed(name, arg string, ctx Context, equal func(a, b string) bool) (string, bool) {
	if arg == "" {
		return "", false
	}
	switch name {
	case "channel":
		if ctx.Guild == nil {
			return "", false
		}
		for _, ch := range ctx.Guild.Channels {
			if equal(ch.Name, arg) {
				return ch.Mention(), true
			}
		}
	case "role":
		if ctx.Guild == nil {
			return "", false
		}
		for _, r := range ctx.Guild.Roles {
			if equal(r.Name, arg) {
				return r.Mention(), true
			}
		}
	case "user":
		if m, ok := findMember(ctx.Members, arg, equal); ok {
			return Sanitize(m.Username, memberNameMaxLen), true
		}
	case "usermention":
		if m, ok := findMember(ctx.Members, arg, equal); ok {
			return m.Mention(), true
		}
	}
	return "", false
}

func resolveBare(name string, ctx Context) (string, bool) {
	switch name {
	case "server":
		return ctx.GuildName, true
	case "everyone":
		return "@everyone", true
	case "here":
		return "@here", true
	case "username":
		if ctx.Member == nil {
			return "", false
		}
		return ctx.Member.Username, true
	case "usermention":
		if ctx.Member == nil {
			return "", false
		}
		return ctx.Member.Mention(), true
	}
	v, ok := ctx.Vars[name]
	return v, ok
}

// findMember prefers a username match, then the tag, then the display name.
func findMember(members []discord.Member, name string, equal func(a, b string) bool) (discord.Member, bool) {
	for _, m := range members {
		if equal(m.Username, name) {
			return m, true
		}
	}
	for _, m := range members {
		if equal(m.Tag(), name) {
			return m, true
		}
	}
	for _, m := range members {
		if m.DisplayName != "" && equal(m.DisplayName, name) {
			return m, true
		}
	}
	return discord.Member{}, false
}

func gifURL(arg string) (string, bool) {
	arg = strings.TrimSpace(arg)
	u, err := url.Parse(arg)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return arg, true
}
