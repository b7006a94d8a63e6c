package handshake_test

import (
	"errors"
	"testing"

	"github.com/earworm-audio/earworm/internal/handshake"
)

func TestPipeDeliversInOrder(t *testing.T) {
	t.Parallel()
	parent, worker := handshake.NewPipe()

	go func() {
		msg, _ := worker.Recv()
		if msg.Kind == handshake.KindListRequest {
			_ = worker.Send(handshake.Message{
				Kind:    handshake.KindStatus,
				Status:  handshake.StatusSet,
				Devices: nil,
			})
		}
	}()

	if err := parent.Send(handshake.Message{Kind: handshake.KindListRequest}); err != nil {
		t.Fatalf("send: %v", err)
	}
	reply, err := parent.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if reply.Kind != handshake.KindStatus || reply.Status != handshake.StatusSet {
		t.Errorf("reply = %+v, want StatusSet", reply)
	}
}

func TestPromptRetryUntilSet(t *testing.T) {
	t.Parallel()
	parent, worker := handshake.NewPipe()

	// Worker: prompt twice (first selection rejected), then confirm.
	go func() {
		_, _ = worker.Recv() // list request
		for i := 0; i < 2; i++ {
			_ = worker.Send(handshake.Message{
				Kind:    handshake.KindStatus,
				Status:  handshake.StatusPrompt,
				Devices: []string{"0: Kitchen (Speaker)"},
			})
			_, _ = worker.Recv()
		}
		_ = worker.Send(handshake.Message{Kind: handshake.KindStatus, Status: handshake.StatusSet})
	}()

	if err := parent.Send(handshake.Message{Kind: handshake.KindListRequest}); err != nil {
		t.Fatalf("send list request: %v", err)
	}

	selections := []string{"nope", "0"}
	prompts := 0
	for {
		msg, err := parent.Recv()
		if err != nil {
			t.Fatalf("recv: %v", err)
		}
		if msg.Status == handshake.StatusSet {
			break
		}
		if msg.Status != handshake.StatusPrompt {
			t.Fatalf("unexpected status %v", msg.Status)
		}
		if len(msg.Devices) == 0 {
			t.Error("prompt carried no device list")
		}
		if prompts >= len(selections) {
			t.Fatal("worker prompted more times than scripted")
		}
		if err := parent.Send(handshake.Message{
			Kind:      handshake.KindSelection,
			Selection: selections[prompts],
		}); err != nil {
			t.Fatalf("send selection: %v", err)
		}
		prompts++
	}
	if prompts != 2 {
		t.Errorf("prompt rounds = %d, want 2", prompts)
	}
}

func TestErrorStatusEndsExchange(t *testing.T) {
	t.Parallel()
	parent, worker := handshake.NewPipe()

	go func() {
		_, _ = worker.Recv()
		_ = worker.Send(handshake.Message{Kind: handshake.KindStatus, Status: handshake.StatusError})
		_ = worker.Close()
	}()

	if err := parent.Send(handshake.Message{Kind: handshake.KindListRequest}); err != nil {
		t.Fatalf("send: %v", err)
	}
	msg, err := parent.Recv()
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	if msg.Status != handshake.StatusError {
		t.Fatalf("status = %v, want StatusError", msg.Status)
	}
}

func TestCloseUnblocksPeer(t *testing.T) {
	t.Parallel()
	parent, worker := handshake.NewPipe()

	errCh := make(chan error, 1)
	go func() {
		_, err := worker.Recv()
		errCh <- err
	}()

	if err := parent.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := <-errCh; !errors.Is(err, handshake.ErrClosed) {
		t.Fatalf("peer recv error = %v, want ErrClosed", err)
	}

	// Every later operation on either side fails the same way.
	if err := parent.Send(handshake.Message{Kind: handshake.KindListRequest}); !errors.Is(err, handshake.ErrClosed) {
		t.Errorf("send after close = %v, want ErrClosed", err)
	}
	if _, err := worker.Recv(); !errors.Is(err, handshake.ErrClosed) {
		t.Errorf("recv after close = %v, want ErrClosed", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()
	parent, worker := handshake.NewPipe()
	for i := 0; i < 3; i++ {
		if err := parent.Close(); err != nil {
			t.Fatalf("close %d: %v", i, err)
		}
	}
	if err := worker.Close(); err != nil {
		t.Fatalf("worker close: %v", err)
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()
	for want, s := range map[string]handshake.Status{
		"PROMPT": handshake.StatusPrompt,
		"SET":    handshake.StatusSet,
		"ERROR":  handshake.StatusError,
	} {
		if got := s.String(); got != want {
			t.Errorf("Status(%d).String() = %q, want %q", s, got, want)
		}
	}
}
