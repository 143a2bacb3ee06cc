package history

import (
	"fmt"
	"testing"
)

func TestAppendAndGet(t *testing.T) {
	b := New(10)
	b.Append("chan1", RoleUser, "hello")
	b.Append("chan1", RoleModel, "hi there")

	got := b.Get("chan1")
	if len(got) != 2 {
		t.Fatalf("Get() returned %d turns, want 2", len(got))
	}
	if got[0].Role != RoleUser || got[0].Text != "hello" {
		t.Errorf("first turn = %+v, want user/hello", got[0])
	}
	if got[1].Role != RoleModel || got[1].Text != "hi there" {
		t.Errorf("second turn = %+v, want model/hi there", got[1])
	}
}

func TestGetUnseenKeyIsEmpty(t *testing.T) {
	b := New(10)
	if got := b.Get("never-seen"); len(got) != 0 {
		t.Errorf("Get() on unseen key returned %d turns, want 0", len(got))
	}
}

func TestWindowNeverExceeded(t *testing.T) {
	const window = 10
	b := New(window)
	for i := 0; i < 57; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		b.Append("chan1", role, fmt.Sprintf("turn %d", i))
		if n := b.Len("chan1"); n > window {
			t.Fatalf("after %d appends, length %d exceeds window %d", i+1, n, window)
		}
	}
}

func TestEvictionDropsPairs(t *testing.T) {
	b := New(4)
	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleModel
		}
		b.Append("chan1", role, fmt.Sprintf("turn %d", i))
	}
	// 5 appends against window 4: the first pair is evicted, leaving 3.
	got := b.Get("chan1")
	if len(got) != 3 {
		t.Fatalf("Len = %d, want 3 (one pair evicted)", len(got))
	}
	if got[0].Text != "turn 2" {
		t.Errorf("head = %q, want %q (eviction must drop two from the front)", got[0].Text, "turn 2")
	}
	if got[0].Role != RoleUser {
		t.Errorf("head role = %q, want user (pair eviction must not leave a dangling model turn)", got[0].Role)
	}
}

func TestEvictionAlwaysEven(t *testing.T) {
	// Odd windows still evict in increments of two.
	b := New(5)
	var lens []int
	for i := 0; i < 20; i++ {
		b.Append("chan1", RoleUser, "x")
		lens = append(lens, b.Len("chan1"))
	}
	for i := 1; i < len(lens); i++ {
		delta := lens[i] - lens[i-1]
		// Each append adds one; eviction removes 0 or 2, so the length
		// either grows by one or shrinks by one.
		if delta != 1 && delta != -1 {
			t.Fatalf("length delta %d at append %d; evictions must remove an even count", delta, i)
		}
	}
}

func TestClearRemovesKey(t *testing.T) {
	b := New(10)
	b.Append("chan1", RoleUser, "hello")
	b.Clear("chan1")

	if got := b.Get("chan1"); len(got) != 0 {
		t.Fatalf("Get() after Clear() returned %d turns, want 0", len(got))
	}

	b.Append("chan1", RoleUser, "fresh start")
	got := b.Get("chan1")
	if len(got) != 1 || got[0].Text != "fresh start" {
		t.Errorf("append after clear = %+v, want single fresh turn", got)
	}
}

func TestClearDoesNotResurrectEvicted(t *testing.T) {
	b := New(2)
	b.Append("chan1", RoleUser, "old question")
	b.Append("chan1", RoleModel, "old answer")
	b.Append("chan1", RoleUser, "new question") // evicts the old pair
	b.Clear("chan1")
	b.Append("chan1", RoleUser, "after clear")

	got := b.Get("chan1")
	if len(got) != 1 {
		t.Fatalf("Len = %d, want 1", len(got))
	}
	if got[0].Text != "after clear" {
		t.Errorf("turn = %q, want %q", got[0].Text, "after clear")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	b := New(4)
	b.Append("chan1", RoleUser, "a")
	b.Append("chan2", RoleUser, "b")
	b.Clear("chan1")

	if b.Len("chan1") != 0 {
		t.Error("chan1 should be empty after Clear")
	}
	if b.Len("chan2") != 1 {
		t.Error("chan2 should be untouched by chan1's Clear")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	b := New(10)
	b.Append("chan1", RoleUser, "original")
	got := b.Get("chan1")
	got[0].Text = "mutated"

	if b.Get("chan1")[0].Text != "original" {
		t.Error("mutating Get() result must not affect stored history")
	}
}
