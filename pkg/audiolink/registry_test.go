package audiolink

import (
	"errors"
	"sync"
	"testing"
)

func testFamilies() []Family {
	return []Family{
		{
			Name:    "A",
			Kind:    KindInvidious,
			Mirrors: []string{"https://a1.example", "https://a2.example", "https://a3.example"},
		},
		{
			Name:    "B",
			Kind:    KindPiped,
			Mirrors: []string{"https://b1.example/"},
		},
	}
}

func TestRegistry_NextRoundRobin(t *testing.T) {
	reg, err := NewRegistry(testFamilies(), MirrorPolicyAll)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	want := []string{
		"https://a1.example", "https://a2.example", "https://a3.example",
		"https://a1.example", "https://a2.example",
	}
	for i, expected := range want {
		got, err := reg.Next("A")
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		if got != expected {
			t.Errorf("call %d: Next() = %q, want %q", i, got, expected)
		}
	}
}

func TestRegistry_NextIsFairUnderConcurrency(t *testing.T) {
	reg, err := NewRegistry(testFamilies(), MirrorPolicyAll)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	const (
		workers = 8
		perWork = 125
		total   = workers * perWork
		mirrors = 3
	)

	var (
		mu     sync.Mutex
		counts = make(map[string]int)
		wg     sync.WaitGroup
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWork; i++ {
				m, err := reg.Next("A")
				if err != nil {
					t.Errorf("Next() error = %v", err)
					return
				}
				mu.Lock()
				counts[m]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	floor := total / mirrors
	ceil := floor
	if total%mirrors != 0 {
		ceil++
	}
	if len(counts) != mirrors {
		t.Fatalf("expected %d distinct mirrors, got %d", mirrors, len(counts))
	}
	for m, c := range counts {
		if c != floor && c != ceil {
			t.Errorf("mirror %s returned %d times, want %d or %d", m, c, floor, ceil)
		}
	}
}

func TestRegistry_RotationVisitsEachMirrorOnce(t *testing.T) {
	reg, err := NewRegistry(testFamilies(), MirrorPolicyAll)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	first, _ := reg.Rotation("A")
	second, _ := reg.Rotation("A")

	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("Rotation() lengths = %d, %d, want 3", len(first), len(second))
	}
	if first[0] != "https://a1.example" || second[0] != "https://a2.example" {
		t.Errorf("Rotation() starts = %q, %q, want a1 then a2", first[0], second[0])
	}

	seen := make(map[string]bool)
	for _, m := range second {
		if seen[m] {
			t.Errorf("Rotation() returned %s twice", m)
		}
		seen[m] = true
	}
}

func TestRegistry_TrailingSlashTrimmed(t *testing.T) {
	reg, err := NewRegistry(testFamilies(), MirrorPolicyAll)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	got, _ := reg.Next("B")
	if got != "https://b1.example" {
		t.Errorf("Next() = %q, want trailing slash trimmed", got)
	}
}

func TestRegistry_UnknownFamily(t *testing.T) {
	reg, err := NewRegistry(testFamilies(), MirrorPolicyAll)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if _, err := reg.Next("Z"); !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("Next() error = %v, want ErrUnknownFamily", err)
	}
	if _, err := reg.Rotation("Z"); !errors.Is(err, ErrUnknownFamily) {
		t.Errorf("Rotation() error = %v, want ErrUnknownFamily", err)
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name     string
		families []Family
		policy   MirrorPolicy
	}{
		{
			name:     "no families",
			families: nil,
		},
		{
			name:     "zero mirrors",
			families: []Family{{Name: "A", Kind: KindInvidious}},
		},
		{
			name:     "blank mirrors only",
			families: []Family{{Name: "A", Kind: KindInvidious, Mirrors: []string{" ", ""}}},
		},
		{
			name:     "relative mirror",
			families: []Family{{Name: "A", Kind: KindInvidious, Mirrors: []string{"inv.example"}}},
		},
		{
			name: "duplicate family",
			families: []Family{
				{Name: "A", Kind: KindInvidious, Mirrors: []string{"https://a.example"}},
				{Name: "A", Kind: KindPiped, Mirrors: []string{"https://b.example"}},
			},
		},
		{
			name: "fast mirror outside list",
			families: []Family{{
				Name:        "A",
				Kind:        KindInvidious,
				Mirrors:     []string{"https://a.example"},
				FastMirrors: []string{"https://other.example"},
			}},
		},
		{
			name:     "unknown policy",
			families: testFamilies(),
			policy:   "fastest",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistry(tt.families, tt.policy); err == nil {
				t.Error("NewRegistry() expected error, got nil")
			}
		})
	}
}

func TestRegistry_FastPolicy(t *testing.T) {
	families := []Family{
		{
			Name:        "A",
			Kind:        KindInvidious,
			Mirrors:     []string{"https://a1.example", "https://a2.example", "https://a3.example"},
			FastMirrors: []string{"https://a2.example"},
		},
		{
			Name:    "B",
			Kind:    KindPiped,
			Mirrors: []string{"https://b1.example", "https://b2.example"},
		},
	}

	reg, err := NewRegistry(families, MirrorPolicyFast)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	rotation, _ := reg.Rotation("A")
	if len(rotation) != 1 || rotation[0] != "https://a2.example" {
		t.Errorf("fast Rotation(A) = %v, want only a2", rotation)
	}

	rotation, _ = reg.Rotation("B")
	if len(rotation) != 2 {
		t.Errorf("fast Rotation(B) = %v, want full list when no fast subset", rotation)
	}

	reg, err = NewRegistry(families, MirrorPolicyAll)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	rotation, _ = reg.Rotation("A")
	if len(rotation) != 3 {
		t.Errorf("all Rotation(A) = %v, want every mirror", rotation)
	}
}
