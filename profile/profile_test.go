package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "profiles.json"))
	if err := s.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	return s
}

func TestGetUnseenUserHasDefaults(t *testing.T) {
	s := newTestStore(t)
	p := s.Get("user1")

	if !p.MemoryEnabled {
		t.Error("MemoryEnabled should default to true")
	}
	if p.ManualMemory == nil || p.AutoMemory == nil {
		t.Error("memory maps should never be nil")
	}
	if len(p.ManualMemory) != 0 || len(p.AutoMemory) != 0 {
		t.Error("new profile should have empty memory maps")
	}

	// Reads have no side effect: the document must not gain the user.
	if _, err := os.Stat(s.path); !os.IsNotExist(err) {
		t.Error("Get() on unseen user must not write the document")
	}
}

func TestManualWinsOverAuto(t *testing.T) {
	s := newTestStore(t)

	wrote, err := s.SetMemory("user1", "city", "Rome", true)
	if err != nil || !wrote {
		t.Fatalf("manual SetMemory = (%v, %v), want (true, nil)", wrote, err)
	}

	// Automatic extraction must not clobber the manual entry.
	wrote, err = s.SetMemory("user1", "city", "Turin", false)
	if err != nil {
		t.Fatalf("auto SetMemory error: %v", err)
	}
	if wrote {
		t.Error("auto write over a manual key should report a no-op")
	}

	p := s.Get("user1")
	if p.ManualMemory["city"] != "Rome" {
		t.Errorf("manual city = %q, want Rome", p.ManualMemory["city"])
	}
	if _, exists := p.AutoMemory["city"]; exists {
		t.Error("auto map must not contain a key shadowed by manual")
	}
}

func TestMergedMemoryManualOverridesAuto(t *testing.T) {
	p := Profile{
		ManualMemory: map[string]string{"city": "Rome"},
		AutoMemory:   map[string]string{"city": "Turin", "job": "chef"},
	}
	merged := p.MergedMemory()
	if merged["city"] != "Rome" {
		t.Errorf("merged city = %q, want Rome (manual wins)", merged["city"])
	}
	if merged["job"] != "chef" {
		t.Errorf("merged job = %q, want chef", merged["job"])
	}
}

func TestRemoveMemory(t *testing.T) {
	s := newTestStore(t)
	s.SetMemory("user1", "manual-key", "a", true)
	s.SetMemory("user1", "auto-key", "b", false)

	if ok, _ := s.RemoveMemory("user1", "missing"); ok {
		t.Error("RemoveMemory on nonexistent key should return false")
	}
	if ok, _ := s.RemoveMemory("user1", "manual-key"); !ok {
		t.Error("RemoveMemory on manual key should return true")
	}
	if ok, _ := s.RemoveMemory("user1", "auto-key"); !ok {
		t.Error("RemoveMemory on auto key should return true")
	}

	p := s.Get("user1")
	if len(p.ManualMemory) != 0 || len(p.AutoMemory) != 0 {
		t.Errorf("memory maps not empty after removals: %+v", p)
	}
}

func TestRemoveMemoryPrefersManual(t *testing.T) {
	s := newTestStore(t)
	s.SetMemory("user1", "auto-first", "auto-value", false)
	s.SetMemory("user1", "auto-first", "manual-value", true)

	if ok, _ := s.RemoveMemory("user1", "auto-first"); !ok {
		t.Fatal("RemoveMemory should delete the manual entry")
	}
	p := s.Get("user1")
	if _, exists := p.ManualMemory["auto-first"]; exists {
		t.Error("manual entry should be gone")
	}
	if p.AutoMemory["auto-first"] != "auto-value" {
		t.Error("auto entry should survive the first removal")
	}
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)
	tone := "formal"
	s.SetFields("user1", Fields{Tone: &tone})
	s.SetMemory("user1", "city", "Rome", true)

	if err := s.ClearAll("user1"); err != nil {
		t.Fatalf("ClearAll() error: %v", err)
	}

	p := s.Get("user1")
	if p.Tone != "" || len(p.ManualMemory) != 0 {
		t.Errorf("profile not reset: %+v", p)
	}
	if !p.MemoryEnabled {
		t.Error("reset profile should have MemoryEnabled default true")
	}
}

func TestPersistenceAcrossLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")

	s1 := New(path)
	if err := s1.Load(); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	tone := "sarcastic"
	off := false
	s1.SetFields("user1", Fields{Tone: &tone, MemoryEnabled: &off})
	s1.SetMemory("user1", "city", "Rome", true)

	s2 := New(path)
	if err := s2.Load(); err != nil {
		t.Fatalf("second Load() error: %v", err)
	}
	p := s2.Get("user1")
	if p.Tone != "sarcastic" {
		t.Errorf("tone = %q, want sarcastic", p.Tone)
	}
	if p.MemoryEnabled {
		t.Error("MemoryEnabled=false must survive a reload")
	}
	if p.ManualMemory["city"] != "Rome" {
		t.Errorf("city = %q, want Rome", p.ManualMemory["city"])
	}
}

func TestUnloadedStoreDegrades(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "profiles.json"))
	// Load intentionally not called.

	p := s.Get("user1")
	if !p.MemoryEnabled {
		t.Error("unloaded Get() should return the safe default profile")
	}

	if _, err := s.SetMemory("user1", "k", "v", true); err != ErrNotLoaded {
		t.Errorf("SetMemory on unloaded store = %v, want ErrNotLoaded", err)
	}
	if err := s.ClearAll("user1"); err != ErrNotLoaded {
		t.Errorf("ClearAll on unloaded store = %v, want ErrNotLoaded", err)
	}
	if ok, err := s.RemoveMemory("user1", "k"); ok || err != ErrNotLoaded {
		t.Errorf("RemoveMemory on unloaded store = (%v, %v), want (false, ErrNotLoaded)", ok, err)
	}
}

func TestLoadIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	s.SetMemory("user1", "city", "Rome", true)

	if err := s.Load(); err != nil {
		t.Fatalf("second Load() error: %v", err)
	}
	if s.Get("user1").ManualMemory["city"] != "Rome" {
		t.Error("second Load() must not discard in-memory state")
	}
}
