package dataflow

import (
	"context"
	"errors"
	"testing"

	"github.com/vnykmshr/dataflow/internal/testutil"
)

func TestEncapsulate_Delegation(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	entry := NewBufferBlock[int](BlockOptions{Name: "entry"})
	exit := NewTransformBlock(Map(func(x int) string {
		return string(rune('a' + x))
	}), BlockOptions{Name: "exit"})
	entry.LinkTo(exit, LinkOptions[int]{PropagateCompletion: true})

	composite := Encapsulate[int, string](entry, exit)
	testutil.AssertEqual(t, composite.Name(), "entry>exit")
	if composite.ID() == entry.ID() || composite.ID() == exit.ID() {
		t.Error("composite should have its own identity")
	}

	rec := &testutil.Recorder[string]{}
	sink := NewActionBlock(rec.Record, BlockOptions{})
	composite.LinkTo(sink, LinkOptions[string]{PropagateCompletion: true})

	testutil.AssertNoError(t, composite.SendAsync(ctx, 0))
	composite.Post(1)
	testutil.AssertEqual(t, composite.State(), Accepting)

	composite.Complete()
	testutil.AssertEqual(t, entry.State() != Accepting, true)

	testutil.AssertNoError(t, composite.Wait(ctx))
	testutil.WaitClosed(t, composite.Completion(), testutil.TestTimeout)
	testutil.AssertNoError(t, composite.Err())
	testutil.AssertEqual(t, composite.Stats().Processed, int64(2))

	testutil.AssertNoError(t, sink.Wait(ctx))
	testutil.AssertSliceEqual(t, rec.Values(), []string{"a", "b"})
	testutil.AssertEqual(t, composite.Post(2), false)
}

func TestEncapsulate_Fault(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	entry := NewBufferBlock[int](BlockOptions{})
	exit := NewTransformBlock(Map(double), BlockOptions{})
	entry.LinkTo(exit, LinkOptions[int]{PropagateCompletion: true})
	composite := Encapsulate[int, int](entry, exit)

	// Fault goes to the entry and reaches the exit through propagation.
	stop := errors.New("stop")
	composite.Fault(stop)

	testutil.AssertErrorIs(t, composite.Wait(ctx), stop)
	testutil.AssertEqual(t, entry.State(), Faulted)
	testutil.AssertEqual(t, composite.State(), Faulted)
	testutil.AssertErrorIs(t, composite.Err(), stop)
	testutil.AssertErrorIs(t, composite.SendAsync(ctx, 1), ErrBlockNotAccepting)
}

func TestEncapsulate_AsStageInChain(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	front := NewTransformBlock(func(ctx context.Context, s string) (int, error) {
		return len(s), nil
	}, BlockOptions{})

	inc := NewTransformBlock(Map(func(x int) int { return x + 1 }), BlockOptions{})
	sq := NewTransformBlock(Map(func(x int) int { return x * x }), BlockOptions{})
	inc.LinkTo(sq, LinkOptions[int]{PropagateCompletion: true})
	composite := Encapsulate[int, int](inc, sq)

	rec := &testutil.Recorder[int]{}
	sink := NewActionBlock(rec.Record, BlockOptions{})

	front.LinkTo(composite, LinkOptions[int]{PropagateCompletion: true})
	composite.LinkTo(sink, LinkOptions[int]{PropagateCompletion: true})

	front.Post("ab")
	front.Post("abcd")
	front.Complete()

	testutil.AssertNoError(t, sink.Wait(ctx))
	testutil.AssertSliceEqual(t, rec.Values(), []int{9, 25})
}
