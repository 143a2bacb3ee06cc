package agent

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mvalenta/kiri/history"
	"github.com/mvalenta/kiri/llm"
	"github.com/mvalenta/kiri/prompt"
)

const msgUnexpected = "Something went wrong on my end. Please try again."

// ChannelAgent is a per-channel conversation goroutine. One goroutine per
// channel serializes turns within that channel while channels proceed
// concurrently.
type ChannelAgent struct {
	channelID string
	res       *Resources
	logger    *slog.Logger

	lastActive        atomic.Int64   // UnixNano; written by agent goroutine, read by Status()
	extractionRunning atomic.Bool    // prevents concurrent extraction goroutines from piling up
	extractionWg      sync.WaitGroup // tracks in-flight memory extraction goroutines

	msgCh chan *discordgo.MessageCreate // buffered 100

	sendFn   func(text string) error
	typingFn func() error
}

func newChannelAgent(channelID string, res *Resources) *ChannelAgent {
	a := &ChannelAgent{
		channelID: channelID,
		res:       res,
		logger:    slog.With("channel_id", channelID),
		msgCh:     make(chan *discordgo.MessageCreate, 100),
	}
	if res.Session != nil {
		a.sendFn = func(text string) error {
			_, err := res.Session.ChannelMessageSend(channelID, text)
			return err
		}
		a.typingFn = func() error {
			return res.Session.ChannelTyping(channelID)
		}
	}
	return a
}

func (a *ChannelAgent) run(ctx context.Context) {
	// Wait for in-flight extraction goroutines before returning, so the
	// profile store is not written to after shutdown completes.
	defer a.extractionWg.Wait()

	idleTimeout := time.Duration(a.res.Cfg.Agent.IdleTimeoutMinutes) * time.Minute
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	for {
		select {
		case msg := <-a.msgCh:
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(idleTimeout)
			a.handleMessage(ctx, msg)

		case <-idleTimer.C:
			a.logger.Info("channel agent idle timeout")
			return

		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			n := len(a.msgCh)
			for i := 0; i < n; i++ {
				a.handleMessage(drainCtx, <-a.msgCh)
			}
			cancel()
			return
		}
	}
}

// handleMessage is the outermost per-message boundary: command dispatch,
// free-text dispatch, and the catch-all for anything unexpected. The bot
// never goes silent on a panic.
func (a *ChannelAgent) handleMessage(ctx context.Context, msg *discordgo.MessageCreate) {
	a.lastActive.Store(time.Now().UnixNano())

	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("panic in message handler", "panic", rec, "stack", string(debug.Stack()))
			a.send(msgUnexpected)
		}
	}()

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return
	}

	prefix := a.res.Cfg.Bot.Prefix
	isCommand := prefix != "" && strings.HasPrefix(content, prefix)

	botID, botName := a.botIdentity()
	if !isCommand && !isAddressedToBot(msg, botID, botName) {
		return
	}

	if a.res.Maintenance.Load() && msg.Author.ID != a.res.Cfg.Bot.OwnerID {
		a.send("I'm down for maintenance right now. Back soon!")
		return
	}

	if isCommand {
		a.handleCommand(ctx, msg, strings.TrimPrefix(content, prefix))
		return
	}

	query := resolveMentions(formatMessageContent(content, botID, botName), msg.Mentions)
	a.freeText(ctx, msg, query)
}

// freeText runs the full conversation pipeline: classify the query into a
// model tier, assemble the prompt from persona, memory, and history, complete,
// reply, and record the turn. Memory extraction runs detached afterwards.
func (a *ChannelAgent) freeText(ctx context.Context, msg *discordgo.MessageCreate, query string) {
	stopTyping := a.startTyping(ctx)
	defer stopTyping()

	userID := msg.Author.ID
	logger := a.logger.With("user_id", userID)

	prof := a.res.Profiles.Get(userID)
	tier := a.res.Tiers.Classify(query)
	turns := prompt.Build(a.res.SoulText, prof, a.res.History.Get(a.channelID), query)

	logger.Info("completing turn", "tier", string(tier), "query_len", len(query))

	text, err := a.res.LLM.Complete(ctx, turns, tier)
	if err != nil {
		logger.Error("completion failed", "error", err)
		a.send(llm.UserMessageFor(err))
		return
	}

	a.send(text)
	a.res.History.Append(a.channelID, history.RoleUser, query)
	a.res.History.Append(a.channelID, history.RoleModel, text)

	if prof.MemoryEnabled {
		a.runMemoryExtraction(ctx, userID, query, prof.AutoMemory)
	}
}

// runMemoryExtraction launches a background goroutine that asks the flash
// model whether the query contains a fact worth remembering. The reply path
// never waits on it and its failure is never the user's problem.
func (a *ChannelAgent) runMemoryExtraction(ctx context.Context, userID, query string, existingAuto map[string]string) {
	if !a.extractionRunning.CompareAndSwap(false, true) {
		return // extraction already in progress
	}

	a.extractionWg.Add(1)
	go func() {
		defer a.extractionWg.Done()
		defer a.extractionRunning.Store(false)

		ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		fact, err := a.res.LLM.ExtractMemory(ctx, query, existingAuto)
		if err != nil {
			a.logger.Warn("memory extraction error", "error", err)
			return
		}
		if fact == nil {
			return
		}
		wrote, err := a.res.Profiles.SetMemory(userID, fact.Key, fact.Value, false)
		if err != nil {
			a.logger.Warn("memory write error", "error", err, "user_id", userID)
			return
		}
		if wrote {
			a.logger.Info("saved extracted memory", "user_id", userID, "key", fact.Key)
		}
	}()
}

func (a *ChannelAgent) send(text string) {
	if a.sendFn == nil {
		return
	}
	if err := a.sendFn(text); err != nil {
		a.logger.Error("send message", "error", err)
	}
}

// startTyping sends a typing indicator immediately and refreshes every 8 seconds
// until the returned cancel function is called.
func (a *ChannelAgent) startTyping(ctx context.Context) context.CancelFunc {
	if a.typingFn == nil {
		return func() {}
	}
	typingCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := a.typingFn(); err != nil {
			a.logger.Warn("channel typing error", "error", err)
		}
		ticker := time.NewTicker(8 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := a.typingFn(); err != nil {
					a.logger.Debug("channel typing refresh error", "error", err)
				}
			case <-typingCtx.Done():
				return
			}
		}
	}()
	return cancel
}

func (a *ChannelAgent) botIdentity() (botID, botName string) {
	s := a.res.Session
	if s == nil || s.State == nil || s.State.User == nil {
		return "", ""
	}
	return s.State.User.ID, s.State.User.Username
}

// isAddressedToBot reports whether a Discord message is directly addressed to
// the bot via DM, @mention, reply, or plain-text name mention.
func isAddressedToBot(m *discordgo.MessageCreate, botID, botName string) bool {
	if m.GuildID == "" {
		return true // DMs are always addressed
	}
	if botID != "" && (strings.Contains(m.Content, "<@"+botID+">") || strings.Contains(m.Content, "<@!"+botID+">")) {
		return true
	}
	if m.MessageReference != nil &&
		m.ReferencedMessage != nil &&
		m.ReferencedMessage.Author != nil &&
		m.ReferencedMessage.Author.ID == botID {
		return true
	}
	if botName != "" && strings.Contains(strings.ToLower(m.Content), strings.ToLower(botName)) {
		return true
	}
	return false
}

// resolveMentions replaces raw Discord mention syntax (<@ID> and <@!ID>) with
// readable display names using the resolved User objects Discord provides.
func resolveMentions(content string, mentions []*discordgo.User) string {
	for _, u := range mentions {
		name := u.GlobalName
		if name == "" {
			name = u.Username
		}
		content = strings.ReplaceAll(content, "<@"+u.ID+">", "@"+name)
		content = strings.ReplaceAll(content, "<@!"+u.ID+">", "@"+name)
	}
	return content
}

// formatMessageContent replaces raw Discord mention syntax (<@ID> and <@!ID>)
// for the bot with a human-readable "@botName" so the model sees natural text.
func formatMessageContent(content, botID, botName string) string {
	if botID == "" {
		return content
	}
	content = strings.ReplaceAll(content, "<@"+botID+">", "@"+botName)
	content = strings.ReplaceAll(content, "<@!"+botID+">", "@"+botName)
	return content
}
