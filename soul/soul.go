// Package soul loads the personality system prompt for the bot.
package soul

import (
	"os"
	"path/filepath"
	"strings"
)

const defaultSoul = `You are Kiri, a friendly and quick-witted companion on this Discord server.
You keep answers conversational and sized for chat — no essays unless someone
really asks for one. You are warm but not sycophantic, and you never pretend
to know things you don't.

You may be given facts a user has taught you about themselves. Weave them in
naturally when they are relevant; never recite them as a list.`

// Load returns the soul/system prompt text.
// A configured soul file wins; the built-in default is the fallback.
func Load(soulFile string) string {
	if soulFile != "" {
		if content := readFile(soulFile); content != "" {
			return content
		}
	}
	return defaultSoul
}

func expandPath(path string) string {
	path = os.ExpandEnv(path)
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	}
	return path
}

// readFile expands env vars and ~, then reads the file.
// Returns empty string on any error.
func readFile(path string) string {
	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		return ""
	}
	return string(data)
}
