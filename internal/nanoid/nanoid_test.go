package nanoid

import (
	"strings"
	"testing"
)

func TestNewLength(t *testing.T) {
	for _, n := range []int{1, 8, 21, 64} {
		if got := len(New(n)); got != n {
			t.Fatalf("len(New(%d)) = %d", n, got)
		}
	}
}

func TestNewDefaultsLength(t *testing.T) {
	if got := len(New(0)); got != DefaultLength {
		t.Fatalf("len(New(0)) = %d, want %d", got, DefaultLength)
	}
	if got := len(New(-5)); got != DefaultLength {
		t.Fatalf("len(New(-5)) = %d, want %d", got, DefaultLength)
	}
}

func TestNewAlphabet(t *testing.T) {
	for i := 0; i < 50; i++ {
		id := New(21)
		for _, ch := range id {
			if !strings.ContainsRune(alphabet, ch) {
				t.Fatalf("id %q contains %q outside the alphanumeric alphabet", id, ch)
			}
		}
	}
}

func TestNewIsUniqueEnough(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New(21)
		if seen[id] {
			t.Fatalf("duplicate id %q after %d draws", id, i)
		}
		seen[id] = true
	}
}
