package broker

import (
	"context"
	"testing"
	"time"
)

func TestProduceConsumeInOrder(t *testing.T) {
	b := NewMem()
	ctx := context.Background()

	off0, err := b.Produce(ctx, "meta", []byte("a"))
	if err != nil || off0 != 0 {
		t.Fatalf("produce 1: off=%d err=%v", off0, err)
	}
	off1, err := b.Produce(ctx, "meta", []byte("b"))
	if err != nil || off1 != 1 {
		t.Fatalf("produce 2: off=%d err=%v", off1, err)
	}

	c, err := b.ConsumeFrom(ctx, "meta", 0)
	if err != nil {
		t.Fatalf("ConsumeFrom: %v", err)
	}
	v, off, err := c.Next(ctx)
	if err != nil || string(v) != "a" || off != 0 {
		t.Fatalf("got %q/%d/%v, want a/0/nil", v, off, err)
	}
	v, off, err = c.Next(ctx)
	if err != nil || string(v) != "b" || off != 1 {
		t.Fatalf("got %q/%d/%v, want b/1/nil", v, off, err)
	}
}

func TestNextOffsetReflectsAppendPoint(t *testing.T) {
	b := NewMem()
	ctx := context.Background()
	off, err := b.NextOffset(ctx, "pfxs")
	if err != nil || off != 0 {
		t.Fatalf("got %d/%v, want 0/nil", off, err)
	}
	b.Produce(ctx, "pfxs", []byte("x"))
	off, err = b.NextOffset(ctx, "pfxs")
	if err != nil || off != 1 {
		t.Fatalf("got %d/%v, want 1/nil", off, err)
	}
}

func TestSeekToRewinds(t *testing.T) {
	b := NewMem()
	ctx := context.Background()
	b.Produce(ctx, "meta", []byte("a"))
	b.Produce(ctx, "meta", []byte("b"))
	b.Produce(ctx, "meta", []byte("c"))

	c, _ := b.ConsumeFrom(ctx, "meta", 2)
	v, off, _ := c.Next(ctx)
	if string(v) != "c" || off != 2 {
		t.Fatalf("got %q/%d, want c/2", v, off)
	}

	if err := c.SeekTo(0); err != nil {
		t.Fatalf("SeekTo: %v", err)
	}
	v, off, _ = c.Next(ctx)
	if string(v) != "a" || off != 0 {
		t.Fatalf("after seek got %q/%d, want a/0", v, off)
	}
}

func TestNextBlocksUntilProduced(t *testing.T) {
	b := NewMem()
	ctx := context.Background()
	c, _ := b.ConsumeFrom(ctx, "meta", 0)

	done := make(chan struct{})
	var gotValue string
	go func() {
		v, _, err := c.Next(ctx)
		if err == nil {
			gotValue = string(v)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("Next returned before any record was produced")
	default:
	}

	b.Produce(ctx, "meta", []byte("late"))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Next did not unblock after Produce")
	}
	if gotValue != "late" {
		t.Fatalf("got %q, want late", gotValue)
	}
}

func TestNextRespectsContextCancellation(t *testing.T) {
	b := NewMem()
	ctx, cancel := context.WithCancel(context.Background())
	c, _ := b.ConsumeFrom(ctx, "meta", 0)

	done := make(chan error, 1)
	go func() {
		_, _, err := c.Next(ctx)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after context cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after context cancellation")
	}
}

func TestCloseUnblocksNext(t *testing.T) {
	b := NewMem()
	ctx := context.Background()
	c, _ := b.ConsumeFrom(ctx, "meta", 0)

	done := make(chan error, 1)
	go func() {
		_, _, err := c.Next(ctx)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
}
