package serialmux

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()

	if err := d.SendCommand("S"); err != nil {
		t.Errorf("SendCommand should be a no-op, got %v", err)
	}
	if err := d.Initialize(); err != nil {
		t.Errorf("Initialize should be a no-op, got %v", err)
	}

	id, ch := d.Subscribe()
	d.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Error("unsubscribed channel should be closed")
	}

	_, ch2 := d.Subscribe()
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-ch2; ok {
		t.Error("channel should be closed after Close")
	}

	// Subscribing after Close yields an already-closed channel
	_, ch3 := d.Subscribe()
	if _, ok := <-ch3; ok {
		t.Error("post-Close subscription should be closed")
	}
}

func TestDisabledMonitorHonoursContext(t *testing.T) {
	d := NewDisabledSerialMux()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Monitor(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not exit after cancel")
	}
}
