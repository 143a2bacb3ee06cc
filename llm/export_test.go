package llm

import "github.com/mvalenta/kiri/router"

// AttemptChain exposes the fallback chain as (key, model) pairs for tests.
func AttemptChain(c *Client, tier router.Tier) [][2]string {
	var out [][2]string
	for _, a := range c.attempts(tier) {
		out = append(out, [2]string{a.key, a.model})
	}
	return out
}

// TruncateAtSentence exposes the truncation fallback for tests.
var TruncateAtSentence = truncateAtSentence
