package router

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	r := New(150, nil)

	tests := []struct {
		name  string
		query string
		want  Tier
	}{
		{"empty query", "", Flash},
		{"short small talk", "hello there", Flash},
		{"short question", "what's up?", Flash},
		{"http url", "check http://example.com please", Pro},
		{"https url", "https://example.com", Pro},
		{"long query", strings.Repeat("x", 300), Pro},
		{"code keyword", "can you fix this code for me", Pro},
		{"explain keyword", "explain quantum tunneling", Pro},
		{"summarize keyword", "summarize our chat", Pro},
		{"keyword is case insensitive", "EXPLAIN this", Pro},
		{"multiple questions", "is it hot? is it cold?", Pro},
		{"single question stays flash", "is it hot?", Flash},
		{"just under threshold", strings.Repeat("a", 150), Flash},
		{"just over threshold", strings.Repeat("a", 151), Pro},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Classify(tt.query); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", truncate(tt.query), got, tt.want)
			}
		})
	}
}

func TestURLBeatsLengthBeatsKeywords(t *testing.T) {
	// A short URL query routes pro via rule 1 even though rules 2 and 3
	// would say flash.
	r := New(150, nil)
	if got := r.Classify("http://a.io"); got != Pro {
		t.Errorf("URL query = %q, want pro", got)
	}

	// A long query with no URL and no keywords routes pro via rule 2.
	long := strings.Repeat("banana ", 40)
	if got := r.Classify(long); got != Pro {
		t.Errorf("long query = %q, want pro", got)
	}
}

func TestExtraKeywords(t *testing.T) {
	r := New(150, []string{"Kubernetes", " ", ""})
	if got := r.Classify("my kubernetes pod is sad"); got != Pro {
		t.Errorf("extra keyword query = %q, want pro", got)
	}
	// Blank extras are dropped, not matched against everything.
	if got := r.Classify("hi"); got != Flash {
		t.Errorf("plain greeting = %q, want flash", got)
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	r := New(150, nil)
	const q = "explain monads"
	first := r.Classify(q)
	for i := 0; i < 10; i++ {
		if got := r.Classify(q); got != first {
			t.Fatalf("Classify is not deterministic: %q then %q", first, got)
		}
	}
}

func truncate(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
