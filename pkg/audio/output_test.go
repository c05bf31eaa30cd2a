package audio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type constSource float32

func (c constSource) Render(buf []float32) {
	for i := range buf {
		buf[i] = float32(c)
	}
}

func TestBufferOutputPull(t *testing.T) {
	out := NewBufferOutput()
	if err := out.Start(constSource(0.5)); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Start before Open: %v", err)
	}
	if err := out.Open(44100, 1, 128); err != nil {
		t.Fatal(err)
	}

	silent := out.Pull(16)
	for i, s := range silent {
		if s != 0 {
			t.Fatalf("sample %d = %v before Start", i, s)
		}
	}

	if err := out.Start(constSource(0.5)); err != nil {
		t.Fatal(err)
	}
	got := out.PullBlocks(3)
	if len(got) != 3*128 {
		t.Fatalf("PullBlocks returned %d samples", len(got))
	}
	for i, s := range got {
		if s != 0.5 {
			t.Fatalf("sample %d = %v, want 0.5", i, s)
		}
	}
	if n := len(out.GetBuffer()); n != 16+3*128 {
		t.Errorf("buffer holds %d samples", n)
	}

	out.Clear()
	if len(out.GetBuffer()) != 0 {
		t.Error("Clear left samples behind")
	}
}

func TestBufferOutputClose(t *testing.T) {
	out := NewBufferOutput()
	_ = out.Open(44100, 1, 64)
	_ = out.Start(constSource(1))
	if !out.IsPlaying() {
		t.Fatal("not playing after Start")
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	if out.IsPlaying() {
		t.Error("still playing after Close")
	}
	for _, s := range out.Pull(8) {
		if s != 0 {
			t.Fatal("closed output rendered audio")
		}
	}
}

func TestBufferOutputFail(t *testing.T) {
	out := NewBufferOutput()
	_ = out.Open(44100, 1, 64)
	if out.Err() != nil {
		t.Fatal("fresh output reports an error")
	}
	cause := errors.New("unplugged")
	out.Fail(cause)
	if err := out.Err(); !errors.Is(err, ErrOutputDevice) || !errors.Is(err, cause) {
		t.Errorf("Err() = %v", err)
	}
}

func TestFallbackOutputPulls(t *testing.T) {
	var calls atomic.Int64
	src := SourceFunc(func(buf []float32) {
		if len(buf) != 64 {
			t.Errorf("block of %d samples, want 64", len(buf))
		}
		calls.Add(1)
	})

	out := NewFallbackOutput()
	if err := out.Start(src); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("Start before Open: %v", err)
	}
	if err := out.Open(8000, 1, 64); err != nil {
		t.Fatal(err)
	}
	if err := out.Start(src); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if calls.Load() < 3 {
		t.Fatalf("only %d pulls", calls.Load())
	}

	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Error("source pulled after Close")
	}
	if err := out.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestFallbackOutputRejectsBadParams(t *testing.T) {
	if err := NewFallbackOutput().Open(0, 1, 64); err == nil {
		t.Error("Open accepted a zero sample rate")
	}
}
