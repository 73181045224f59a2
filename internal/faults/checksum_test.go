package faults

import "testing"

func TestHashBuilderDeterministic(t *testing.T) {
	h1 := NewHashBuilder().String("drivePostFail").String("dref-1").Bool(true).Build()
	h2 := NewHashBuilder().String("drivePostFail").String("dref-1").Bool(true).Build()

	if h1 != h2 {
		t.Error("same inputs must produce the same hash")
	}
}

func TestHashBuilderOrderMatters(t *testing.T) {
	h1 := NewHashBuilder().String("a").String("b").Build()
	h2 := NewHashBuilder().String("b").String("a").Build()

	if h1 == h2 {
		t.Error("different input order must produce different hashes")
	}
}

func TestHashBuilderSeparatorPreventsCollisions(t *testing.T) {
	h1 := NewHashBuilder().String("ab").String("c").Build()
	h2 := NewHashBuilder().String("a").String("bc").Build()

	if h1 == h2 {
		t.Error("string boundaries must affect the hash")
	}
}

func TestHashBuilderStringMapSorted(t *testing.T) {
	m1 := map[string]string{"x": "1", "y": "2", "z": "3"}
	m2 := map[string]string{"z": "3", "x": "1", "y": "2"}

	if NewHashBuilder().StringMap(m1).Build() != NewHashBuilder().StringMap(m2).Build() {
		t.Error("map hash must be independent of insertion order")
	}
}

func TestChecksumGuardTwoPhase(t *testing.T) {
	g := NewChecksumGuard()
	payload := []byte(`[{"failureType":"drivePostFail"}]`)

	// Never-seen payload is not "unchanged".
	hash, unchanged := g.Check("sys-a", payload)
	if unchanged {
		t.Fatal("first check must not report unchanged")
	}

	// Check alone must not commit: the same payload still reads as changed.
	if _, unchanged := g.Check("sys-a", payload); unchanged {
		t.Fatal("uncommitted hash must not short-circuit")
	}

	g.Commit("sys-a", hash)
	if _, unchanged := g.Check("sys-a", payload); !unchanged {
		t.Fatal("committed identical payload must short-circuit")
	}

	// Different payload breaks the match.
	if _, unchanged := g.Check("sys-a", []byte(`[]`)); unchanged {
		t.Fatal("different payload must not short-circuit")
	}

	// Systems are independent.
	if _, unchanged := g.Check("sys-b", payload); unchanged {
		t.Fatal("other systems must not share hashes")
	}
}

func TestChecksumGuardForget(t *testing.T) {
	g := NewChecksumGuard()
	payload := []byte(`payload`)

	hash, _ := g.Check("sys-a", payload)
	g.Commit("sys-a", hash)
	g.Forget("sys-a")

	if _, unchanged := g.Check("sys-a", payload); unchanged {
		t.Error("forgotten system must reconcile fully")
	}
}
