// Package prompt assembles the turn sequence sent to the model: persona,
// profile context, windowed history, and the new query, in an order the
// provider accepts (strict user/model alternation after the system turn).
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mvalenta/kiri/history"
	"github.com/mvalenta/kiri/llm"
	"github.com/mvalenta/kiri/profile"
)

const memoryAck = "Got it. I'll keep that in mind."

// Build produces the full prompt for one turn.
//
// Layout: one system turn (soul text plus tone/persona directive lines),
// then — when the profile has memory enabled and any memories exist — a
// synthetic user turn carrying the merged memories with a model
// acknowledgement right after it (the ack preserves alternation; the pair
// is call-scoped and must never be appended to the history buffer), then
// the windowed history, then the query as the final user turn.
func Build(soulText string, prof profile.Profile, hist []history.Turn, query string) []llm.Turn {
	turns := make([]llm.Turn, 0, len(hist)+4)
	turns = append(turns, llm.Turn{Role: llm.RoleSystem, Text: personaText(soulText, prof)})

	if prof.MemoryEnabled {
		if mem := prof.MergedMemory(); len(mem) > 0 {
			turns = append(turns,
				llm.Turn{Role: llm.RoleUser, Text: memoryContext(mem)},
				llm.Turn{Role: llm.RoleModel, Text: memoryAck},
			)
		}
	}

	for _, h := range hist {
		// The provider wants the first non-system turn to come from the
		// user; drop a dangling model turn at the head of the window.
		if len(turns) == 1 && h.Role == llm.RoleModel {
			continue
		}
		turns = appendAlternating(turns, llm.Turn{Role: h.Role, Text: h.Text})
	}
	return appendAlternating(turns, llm.Turn{Role: llm.RoleUser, Text: query})
}

// personaText builds the system turn: the soul text with any profile
// tone/persona set as extra directive lines, never as separate turns.
func personaText(soulText string, prof profile.Profile) string {
	var sb strings.Builder
	sb.WriteString(soulText)
	if prof.Tone != "" {
		fmt.Fprintf(&sb, "\n\nAlways respond in a %s tone.", prof.Tone)
	}
	if prof.Persona != "" {
		fmt.Fprintf(&sb, "\n\nAdopt this persona for this user: %s", prof.Persona)
	}
	return sb.String()
}

// memoryContext serializes merged memories as one context block, keys
// sorted for a stable prompt.
func memoryContext(mem map[string]string) string {
	keys := make([]string, 0, len(mem))
	for k := range mem {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	sb.WriteString("Here is what you already know about me:\n")
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %s\n", k, mem[k])
	}
	return sb.String()
}

// appendAlternating appends t, merging its text into the previous turn
// when both share a role. Providers reject consecutive same-role turns,
// and merging keeps the content without inventing filler.
func appendAlternating(turns []llm.Turn, t llm.Turn) []llm.Turn {
	if n := len(turns); n > 0 {
		last := &turns[n-1]
		if last.Role == t.Role {
			last.Text = last.Text + "\n" + t.Text
			return turns
		}
	}
	return append(turns, t)
}
