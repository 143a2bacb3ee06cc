// Package router classifies queries into the flash or pro model tier.
//
// The classifier is pure and deterministic: cheap string heuristics stand
// in for an extra LLM round-trip, accepting occasional misclassification.
// The rule ORDER is the contract (URL beats length beats keywords, with a
// default-to-cheap fallback); the keyword list itself is tunable.
package router

import (
	"regexp"
	"strings"
)

// Tier is the logical model destination.
type Tier string

const (
	Flash Tier = "flash" // fast/cheap
	Pro   Tier = "pro"   // large/tool-augmented
)

var urlRe = regexp.MustCompile(`https?://\S+`)

// defaultKeywords marks queries that need the larger model: code and
// analysis tasks, long-form requests, multi-question prompts.
var defaultKeywords = []string{
	"code", "program", "function", "algorithm", "bug", "debug",
	"compile", "script", "regex", "sql",
	"analyze", "analyse", "explain", "review", "debate", "summarize",
	"summarise", "research", "compare", "essay", "detailed",
	"step by step", "step-by-step", "why does", "how does",
}

// Router decides which model tier should serve a query.
type Router struct {
	lengthThreshold int
	keywords        []string
}

// New creates a Router. extraKeywords extends the built-in keyword set;
// a threshold of 0 or less falls back to 150 characters.
func New(lengthThreshold int, extraKeywords []string) *Router {
	if lengthThreshold <= 0 {
		lengthThreshold = 150
	}
	kws := make([]string, 0, len(defaultKeywords)+len(extraKeywords))
	kws = append(kws, defaultKeywords...)
	for _, k := range extraKeywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kws = append(kws, k)
		}
	}
	return &Router{lengthThreshold: lengthThreshold, keywords: kws}
}

// Classify applies the rules in priority order:
//  1. query contains an http(s) URL -> Pro
//  2. query length over the threshold -> Pro
//  3. query contains a complexity keyword or multiple questions -> Pro
//  4. otherwise -> Flash
func (r *Router) Classify(query string) Tier {
	if urlRe.MatchString(query) {
		return Pro
	}
	if len(query) > r.lengthThreshold {
		return Pro
	}
	lower := strings.ToLower(query)
	for _, kw := range r.keywords {
		if strings.Contains(lower, kw) {
			return Pro
		}
	}
	if strings.Count(lower, "?") >= 2 {
		return Pro
	}
	return Flash
}
