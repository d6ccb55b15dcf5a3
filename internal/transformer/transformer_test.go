package transformer

import (
	"reflect"
	"sync/atomic"
	"testing"
)

/*
appendStep appends a marker to every element. Used to verify that each step
sees the previous step's output.
*/
type appendStep struct{ mark string }

func (s appendStep) Apply(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = v + s.mark
	}
	return out
}

/*
dropEmpty removes empty strings.
*/
type dropEmpty struct{}

func (dropEmpty) Apply(in []string) []string {
	out := in[:0:0]
	for _, v := range in {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

/*
counterStep counts Apply calls.
*/
type counterStep struct{ calls *int32 }

func (s counterStep) Apply(in []string) []string {
	atomic.AddInt32(s.calls, 1)
	return in
}

/*
TestChainApply_Composition_Order verifies that Chain.Apply passes the output of
each step as the input to the next, in the declared order.
*/
func TestChainApply_Composition_Order(t *testing.T) {
	c := Chain[string]{appendStep{"a"}, dropEmpty{}, appendStep{"b"}}
	got := c.Apply([]string{"x", "", "y"})
	// "" becomes "a" before the filter runs, so it survives.
	want := []string{"xab", "ab", "yab"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("composition mismatch:\n got: %#v\nwant: %#v", got, want)
	}
}

/*
TestChainApply_NilChain verifies that a nil Chain returns the input unchanged.
*/
func TestChainApply_NilChain(t *testing.T) {
	in := []string{"a", "b"}
	var c Chain[string]
	out := c.Apply(in)
	if len(out) != len(in) || &out[0] != &in[0] {
		t.Fatalf("nil chain should return same slice header")
	}
}

/*
TestChainApply_StepCalledOnce ensures each step is invoked exactly once per
Apply call.
*/
func TestChainApply_StepCalledOnce(t *testing.T) {
	var calls int32
	c := Chain[string]{counterStep{&calls}, counterStep{&calls}, counterStep{&calls}}
	_ = c.Apply([]string{"a"})
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls=%d; want 3", got)
	}
}
