package echo

import (
	"context"
	"testing"
)

func TestWriteBeforeOpenFails(t *testing.T) {
	tr := New()
	ok, err := tr.Write(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("unexpected error before open: %v", err)
	}
	if ok {
		t.Fatalf("expected Write to report not-ok before Open")
	}
}

func TestWriteDeliversToSubscribers(t *testing.T) {
	tr := New()
	if err := tr.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}

	received := make(chan []byte, 1)
	sub := tr.SubscribeOnReceived(func(data []byte) { received <- data })
	defer func() { _ = sub }()

	want := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	ok, err := tr.Write(context.Background(), want)
	if err != nil || !ok {
		t.Fatalf("Write: ok=%v err=%v", ok, err)
	}

	select {
	case got := <-received:
		if string(got) != string(want) {
			t.Fatalf("delivered %x, want %x", got, want)
		}
	default:
		t.Fatalf("expected synchronous delivery to subscriber")
	}
}

func TestWriteAfterCloseFails(t *testing.T) {
	tr := New()
	if err := tr.Open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if tr.IsOpen() {
		t.Fatalf("expected IsOpen false after Close")
	}
	ok, err := tr.Write(context.Background(), []byte{1})
	if err != nil || ok {
		t.Fatalf("expected a closed-transport write to report not-ok, got ok=%v err=%v", ok, err)
	}
}
