package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mvalenta/kiri/router"
)

const extractionPrompt = `You maintain a user's long-term memory for a chat assistant.
Decide whether the user's message contains ONE new personal fact worth remembering
(location, job, preferences, relationships, pets, goals, plans).

Known facts (do not re-save these):
%s

If there is a new fact, reply with EXACTLY one line in this format:
save::key::value
where key is a short lowercase identifier (e.g. city, job, favorite_food).

If there is nothing worth remembering, reply with EXACTLY:
NO_MEMORY

Do not reply with anything else.

User message:
%s`

// Fact is one extracted key/value memory.
type Fact struct {
	Key   string
	Value string
}

// ExtractMemory asks the flash model whether the query contains a fact
// worth remembering. Output that does not strictly match the
// save::key::value shape — including the NO_MEMORY sentinel — means no
// memory was found; malformed model output is never an error.
func (c *Client) ExtractMemory(ctx context.Context, query string, existingAuto map[string]string) (*Fact, error) {
	known := "(none)"
	if len(existingAuto) > 0 {
		keys := make([]string, 0, len(existingAuto))
		for k := range existingAuto {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var sb strings.Builder
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, existingAuto[k])
		}
		known = sb.String()
	}

	reply, err := c.generate(ctx, c.cfg.GeminiKey, c.cfg.FlashModel,
		[]Turn{{Role: RoleUser, Text: fmt.Sprintf(extractionPrompt, known, query)}})
	if err != nil {
		return nil, classify(err)
	}
	return ParseFact(reply.Text), nil
}

// ParseFact parses the constrained extraction output. Only a line with
// exactly two "::" delimiters, a "save" action, and non-empty key and
// value yields a fact; everything else is "no memory found".
func ParseFact(s string) *Fact {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "::")
	if len(parts) != 3 {
		return nil
	}
	action := strings.ToLower(strings.TrimSpace(parts[0]))
	key := strings.TrimSpace(parts[1])
	value := strings.TrimSpace(parts[2])
	if action != "save" || key == "" || value == "" {
		return nil
	}
	return &Fact{Key: key, Value: value}
}

// Review runs a single-shot code review on the pro model.
func (c *Client) Review(ctx context.Context, code string) (string, error) {
	turns := []Turn{
		{Role: RoleSystem, Text: "You are a precise code reviewer. Point out bugs, risky " +
			"patterns, and concrete improvements. Be brief; skip praise."},
		{Role: RoleUser, Text: "Review this code:\n\n" + code},
	}
	return c.Complete(ctx, turns, router.Pro)
}

// Summarize condenses text with the flash model.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	turns := []Turn{
		{Role: RoleSystem, Text: "Summarize the given text in a few short paragraphs. " +
			"Keep concrete facts, names, and numbers."},
		{Role: RoleUser, Text: text},
	}
	return c.Complete(ctx, turns, router.Flash)
}

// ExtractFacts pulls the key facts out of text as a bullet list.
func (c *Client) ExtractFacts(ctx context.Context, text string) (string, error) {
	turns := []Turn{
		{Role: RoleSystem, Text: "Extract the key facts from the given text as a short " +
			"bullet list, one fact per line. No commentary."},
		{Role: RoleUser, Text: text},
	}
	return c.Complete(ctx, turns, router.Flash)
}
