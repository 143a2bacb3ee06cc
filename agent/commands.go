package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mvalenta/kiri/llm"
	"github.com/mvalenta/kiri/profile"
	"github.com/mvalenta/kiri/webtext"
)

const helpText = `**Commands**
` + "`help`" + ` — this message
` + "`ping`" + ` — liveness check
` + "`uptime`" + ` — how long I've been running
` + "`reset`" + ` — clear this channel's conversation history
` + "`remember <key> <value>`" + ` — teach me a fact about you
` + "`forget <key>`" + ` — remove a saved fact
` + "`showdata`" + ` — show everything I have saved about you
` + "`resetprofile`" + ` — wipe your profile
` + "`settone <tone>`" + ` — how I should sound when talking to you
` + "`setpersona <persona>`" + ` — a persona I should adopt for you
` + "`memory on|off`" + ` — toggle automatic memory
` + "`review <code>`" + ` — code review
` + "`summarize <url>`" + ` — summarize a web page
` + "`extract <text>`" + ` — pull the key facts out of a text

Anything else you say to me goes straight to the model.`

// splitCommand separates the command name from its argument string.
// The name is case-insensitive; the arguments keep their internal spacing.
func splitCommand(body string) (name, args string) {
	name, args, _ = strings.Cut(strings.TrimSpace(body), " ")
	return strings.ToLower(name), strings.TrimSpace(args)
}

// handleCommand dispatches a prefix-stripped command. Malformed arguments are
// reported as a formatted reply, never as an error.
func (a *ChannelAgent) handleCommand(ctx context.Context, msg *discordgo.MessageCreate, body string) {
	name, args := splitCommand(body)
	userID := msg.Author.ID
	a.logger.Info("command", "command", name, "user_id", userID)

	switch name {
	case "help":
		a.send(helpText)

	case "ping":
		a.send("Pong!")

	case "uptime":
		up := time.Since(a.res.StartedAt).Round(time.Second)
		a.send(fmt.Sprintf("I've been up for %s.", up))

	case "reset":
		a.res.History.Clear(a.channelID)
		a.send("Conversation history cleared. Fresh start!")

	case "remember":
		a.cmdRemember(userID, args)

	case "forget":
		a.cmdForget(userID, args)

	case "showdata":
		a.send(formatProfile(a.res.Profiles.Get(userID)))

	case "resetprofile":
		if err := a.res.Profiles.ClearAll(userID); err != nil {
			a.send("I couldn't reset your profile right now. Try again later.")
			return
		}
		a.send("Your profile has been wiped.")

	case "settone":
		if args == "" {
			a.send("Usage: `settone <tone>` — e.g. `settone sarcastic`.")
			return
		}
		if err := a.res.Profiles.SetFields(userID, profile.Fields{Tone: &args}); err != nil {
			a.send("I couldn't save that right now. Try again later.")
			return
		}
		a.send(fmt.Sprintf("Tone set to %q.", args))

	case "setpersona":
		if args == "" {
			a.send("Usage: `setpersona <persona>` — e.g. `setpersona a grumpy pirate`.")
			return
		}
		if err := a.res.Profiles.SetFields(userID, profile.Fields{Persona: &args}); err != nil {
			a.send("I couldn't save that right now. Try again later.")
			return
		}
		a.send(fmt.Sprintf("Persona set to %q.", args))

	case "memory":
		a.cmdMemory(userID, args)

	case "review":
		a.cmdTask(ctx, args, "Usage: `review <code>` — paste the code after the command.",
			func(tctx context.Context) (string, error) { return a.res.LLM.Review(tctx, args) })

	case "summarize":
		a.cmdSummarize(ctx, args)

	case "extract":
		a.cmdTask(ctx, args, "Usage: `extract <text>` — paste the text after the command.",
			func(tctx context.Context) (string, error) { return a.res.LLM.ExtractFacts(tctx, args) })

	case "maintenance":
		a.cmdMaintenance(userID)

	default:
		a.send(fmt.Sprintf("Unknown command %q. Try `%shelp`.", name, a.res.Cfg.Bot.Prefix))
	}
}

func (a *ChannelAgent) cmdRemember(userID, args string) {
	key, value, _ := strings.Cut(args, " ")
	value = strings.TrimSpace(value)
	if key == "" || value == "" {
		a.send("Usage: `remember <key> <value>` — e.g. `remember city Prague`.")
		return
	}
	if _, err := a.res.Profiles.SetMemory(userID, key, value, true); err != nil {
		a.send("I couldn't save that right now. Try again later.")
		return
	}
	a.send(fmt.Sprintf("Got it — %s: %s.", key, value))
}

func (a *ChannelAgent) cmdForget(userID, args string) {
	if args == "" {
		a.send("Usage: `forget <key>`.")
		return
	}
	removed, err := a.res.Profiles.RemoveMemory(userID, args)
	if err != nil {
		a.send("I couldn't touch your profile right now. Try again later.")
		return
	}
	if !removed {
		a.send(fmt.Sprintf("I don't have anything saved under %q.", args))
		return
	}
	a.send(fmt.Sprintf("Forgotten: %s.", args))
}

func (a *ChannelAgent) cmdMemory(userID, args string) {
	var enabled bool
	switch strings.ToLower(args) {
	case "on":
		enabled = true
	case "off":
		enabled = false
	default:
		a.send("Usage: `memory on` or `memory off`.")
		return
	}
	if err := a.res.Profiles.SetFields(userID, profile.Fields{MemoryEnabled: &enabled}); err != nil {
		a.send("I couldn't save that right now. Try again later.")
		return
	}
	if enabled {
		a.send("Automatic memory is on. I'll quietly remember useful things.")
	} else {
		a.send("Automatic memory is off. I'll only keep what you teach me with `remember`.")
	}
}

// cmdTask runs a single-shot model task (review, extract) with typing shown.
func (a *ChannelAgent) cmdTask(ctx context.Context, args, usage string, task func(context.Context) (string, error)) {
	if args == "" {
		a.send(usage)
		return
	}
	stopTyping := a.startTyping(ctx)
	defer stopTyping()

	text, err := task(ctx)
	if err != nil {
		a.logger.Error("task completion failed", "error", err)
		a.send(llm.UserMessageFor(err))
		return
	}
	a.send(text)
}

func (a *ChannelAgent) cmdSummarize(ctx context.Context, args string) {
	if !strings.HasPrefix(args, "http://") && !strings.HasPrefix(args, "https://") {
		a.send("Usage: `summarize <url>` — give me a full http(s) link.")
		return
	}
	stopTyping := a.startTyping(ctx)
	defer stopTyping()

	text, err := webtext.Fetch(ctx, args)
	if err != nil {
		a.logger.Warn("page fetch failed", "error", err, "url", args)
		a.send("I couldn't read that page. It may be down, blocked, or not HTML.")
		return
	}
	summary, err := a.res.LLM.Summarize(ctx, text)
	if err != nil {
		a.logger.Error("summarize completion failed", "error", err)
		a.send(llm.UserMessageFor(err))
		return
	}
	a.send(summary)
}

func (a *ChannelAgent) cmdMaintenance(userID string) {
	if userID != a.res.Cfg.Bot.OwnerID {
		a.send("Only my owner can do that.")
		return
	}
	on := !a.res.Maintenance.Load()
	a.res.Maintenance.Store(on)
	if on {
		a.logger.Warn("maintenance mode enabled", "user_id", userID)
		a.send("Maintenance mode is now ON. I'll only talk to you.")
	} else {
		a.logger.Info("maintenance mode disabled", "user_id", userID)
		a.send("Maintenance mode is now OFF. Back to normal.")
	}
}

// formatProfile renders a user's stored profile for the showdata command.
func formatProfile(p profile.Profile) string {
	var sb strings.Builder
	sb.WriteString("**Your profile**\n")

	tone := p.Tone
	if tone == "" {
		tone = "(not set)"
	}
	persona := p.Persona
	if persona == "" {
		persona = "(not set)"
	}
	fmt.Fprintf(&sb, "Tone: %s\n", tone)
	fmt.Fprintf(&sb, "Persona: %s\n", persona)
	if p.MemoryEnabled {
		sb.WriteString("Automatic memory: on\n")
	} else {
		sb.WriteString("Automatic memory: off\n")
	}

	writeMemory := func(title string, mem map[string]string) {
		fmt.Fprintf(&sb, "%s:", title)
		if len(mem) == 0 {
			sb.WriteString(" (none)\n")
			return
		}
		sb.WriteString("\n")
		keys := make([]string, 0, len(mem))
		for k := range mem {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, mem[k])
		}
	}
	writeMemory("Things you taught me", p.ManualMemory)
	writeMemory("Things I picked up", p.AutoMemory)

	return strings.TrimRight(sb.String(), "\n")
}
