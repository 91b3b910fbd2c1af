package flag

import (
	"testing"
	"time"

	"github.com/achilleasa/katapayadi/config/store"
)

func TestDurationFlag(t *testing.T) {
	var s store.Store
	s.SetKey(0, "service/acquiretimeout", "1s")

	f := NewDuration(&s, "service/acquiretimeout")
	defer f.CancelDynamicUpdates()

	if val := f.Get(); val != time.Second {
		t.Fatalf("expected val to be %s; got %s", time.Second, val)
	}

	s.SetKey(1, "service/acquiretimeout", "soon")
	expectNoChange(t, f)

	s.SetKey(1, "service/acquiretimeout", "250ms")
	expectChange(t, f)
	if val := f.Get(); val != 250*time.Millisecond {
		t.Fatalf("expected val to be %s; got %s", 250*time.Millisecond, val)
	}
}
