package intent

import (
	"math/rand"
	"testing"

	"github.com/apilar-sim/apilar/internal/geo"
)

func TestWantCancelSemantics(t *testing.T) {
	w := New()
	arg := Arg{Amount: 5}
	w.Want(Eat, arg)
	w.Want(Eat, arg)
	winners := w.Winners(Eat)
	if len(winners) != 1 || winners[0] != arg {
		t.Fatalf("winners = %v, want [%v]", winners, arg)
	}
	w.Cancel(Eat)
	winners = w.Winners(Eat)
	if len(winners) != 1 {
		t.Fatalf("count(2) > cancel(1) should still win, got %v", winners)
	}
	w.Cancel(Eat)
	winners = w.Winners(Eat)
	if len(winners) != 0 {
		t.Fatalf("count(2) == cancel(2) should not win, got %v", winners)
	}
}

func TestOverflowDropped(t *testing.T) {
	w := New()
	for i := 0; i < maxTuples+4; i++ {
		w.Want(Start, Arg{Address: i})
	}
	if got := len(w.categories[Start].tallies); got != maxTuples {
		t.Fatalf("distinct tuples = %d, want %d", got, maxTuples)
	}
}

func TestChooseUniform(t *testing.T) {
	w := New()
	w.Want(Split, Arg{Direction: geo.North, Address: 1})
	rng := rand.New(rand.NewSource(1))
	arg, ok := w.Choose(Split, rng)
	if !ok || arg.Address != 1 {
		t.Fatalf("Choose = %v, %v", arg, ok)
	}
}

func TestClearResets(t *testing.T) {
	w := New()
	w.Want(Grow, Arg{Amount: 1})
	w.Clear()
	if winners := w.Winners(Grow); len(winners) != 0 {
		t.Fatalf("after Clear, winners = %v, want none", winners)
	}
}

func TestMergeStrength(t *testing.T) {
	w := New()
	w.Want(Merge, Arg{Direction: geo.East, Address: 3})
	w.Want(Merge, Arg{Direction: geo.East, Address: 3})
	rng := rand.New(rand.NewSource(1))
	arg, strength, ok := w.ChooseWithStrength(Merge, rng)
	if !ok || strength != 2 || arg.Address != 3 {
		t.Fatalf("ChooseWithStrength = %v, %d, %v", arg, strength, ok)
	}

	w2 := New()
	w2.Want(BlockMerge, Arg{Direction: geo.West})
	strength2, found := w2.StrengthByDirection(BlockMerge, geo.West)
	if !found || strength2 != 1 {
		t.Fatalf("StrengthByDirection = %d, %v, want 1, true", strength2, found)
	}
	if _, found := w2.StrengthByDirection(BlockMerge, geo.North); found {
		t.Fatal("StrengthByDirection(North) should not be found")
	}
}
