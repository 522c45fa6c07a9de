package serialmux

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	if id1 == id2 {
		t.Error("subscriber IDs should be unique")
	}
	if ch1 == nil || ch2 == nil {
		t.Fatal("subscriber channels should not be nil")
	}

	mux.Unsubscribe(id1)
	if _, ok := <-ch1; ok {
		t.Error("unsubscribed channel should be closed")
	}

	// Unsubscribing twice must not panic
	mux.Unsubscribe(id1)
	mux.Unsubscribe(id2)
}

func TestSendCommandAppendsNewline(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.SendCommand("S"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := string(port.GetWrittenData()); got != "S\n" {
		t.Errorf("written = %q, want %q", got, "S\n")
	}

	port.Reset()
	if err := mux.SendCommand("X\n"); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := string(port.GetWrittenData()); got != "X\n" {
		t.Errorf("written = %q, want %q", got, "X\n")
	}
}

func TestSendCommandWriteError(t *testing.T) {
	port := NewTestableSerialPort()
	port.WriteError = errors.New("device unplugged")
	mux := NewSerialMux(port)

	if err := mux.SendCommand("S"); err == nil {
		t.Error("expected error from failed write")
	}
}

func TestInitializeSendsStartSequence(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.Initialize(); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	written := string(port.GetWrittenData())
	if !strings.HasPrefix(written, "T=") {
		t.Errorf("first command should sync the clock, got %q", written)
	}
	for _, cmd := range []string{"F=100\n", "OC\n", "OH\n", "S\n"} {
		if !strings.Contains(written, cmd) {
			t.Errorf("missing start command %q in %q", cmd, written)
		}
	}
	// streaming must start after the configuration commands
	if strings.Index(written, "S\n") < strings.Index(written, "F=100\n") {
		t.Errorf("stream start arrived before configuration: %q", written)
	}
}

func TestStartStopStream(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	if err := mux.StartStream(); err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}
	if err := mux.StopStream(); err != nil {
		t.Fatalf("StopStream failed: %v", err)
	}
	if got := string(port.GetWrittenData()); got != "S\nX\n" {
		t.Errorf("written = %q, want %q", got, "S\nX\n")
	}
}

func TestMonitorDeliversLines(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	// Delivery to subscribers is best-effort, so keep feeding lines until
	// the receiver observes one.
	timeout := time.After(2 * time.Second)
	feed := time.NewTicker(10 * time.Millisecond)
	defer feed.Stop()
receive:
	for {
		select {
		case line := <-ch:
			if line != "0.01,1638,2100,1650" {
				t.Errorf("line = %q", line)
			}
			break receive
		case <-feed.C:
			port.AddReadData([]byte("0.01,1638,2100,1650\n"))
		case <-timeout:
			t.Fatal("timed out waiting for line delivery")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Monitor returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not exit after cancel")
	}
}

func TestMonitorSkipsBlockedSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	// Never read from this channel: delivery must be skipped, not block.
	mux.Subscribe()
	_, live := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Monitor(ctx)

	// A blocked channel drops lines; a live reader may miss lines written
	// before it is scheduled, so keep feeding until one arrives.
	timeout := time.After(2 * time.Second)
	feed := time.NewTicker(10 * time.Millisecond)
	defer feed.Stop()
	for {
		select {
		case <-live:
			return
		case <-feed.C:
			port.AddReadData([]byte("0.02,1638,2100,1650\n"))
		case <-timeout:
			t.Fatal("live subscriber never received a line")
		}
	}
}

func TestCloseShutsDownSubscribers(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	_, ch := mux.Subscribe()
	if err := mux.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed after Close")
	}
	if !port.Closed {
		t.Error("underlying port should be closed")
	}
}
