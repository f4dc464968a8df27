package store

import (
	"bytes"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tbourn/blind-relay/internal/ident"
)

func TestOneTime_PutTakeOnce(t *testing.T) {
	s := NewOneTime(time.Hour)

	id := s.Put([]byte("secret"))
	if len(id) != ident.IDLen {
		t.Fatalf("unexpected id %q", id)
	}

	got, err := s.Take(id)
	if err != nil {
		t.Fatalf("first take failed: %v", err)
	}
	if !bytes.Equal(got, []byte("secret")) {
		t.Fatalf("payload mismatch: %q", got)
	}

	if _, err := s.Take(id); !errors.Is(err, ErrGone) {
		t.Fatalf("second take should be gone, got %v", err)
	}
}

func TestOneTime_UnknownID(t *testing.T) {
	s := NewOneTime(time.Hour)
	if _, err := s.Take("deadbeefdeadbeefdeadbeefdeadbeef"); !errors.Is(err, ErrGone) {
		t.Fatalf("expected ErrGone, got %v", err)
	}
}

func TestOneTime_ExpiredEntryIsGoneAndDeleted(t *testing.T) {
	s := NewOneTime(time.Millisecond)
	id := s.Put([]byte("x"))

	time.Sleep(5 * time.Millisecond)

	if _, err := s.Take(id); !errors.Is(err, ErrGone) {
		t.Fatalf("expired take should be gone, got %v", err)
	}
	if s.Len() != 0 {
		t.Fatalf("expired entry should be deleted on take, len=%d", s.Len())
	}
}

func TestOneTime_Sweep(t *testing.T) {
	s := NewOneTime(time.Millisecond)
	s.Put([]byte("a"))
	s.Put([]byte("b"))
	live := NewOneTime(time.Hour)
	liveID := live.Put([]byte("c"))

	time.Sleep(5 * time.Millisecond)

	if n := s.Sweep(ident.NowMillis()); n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	if s.Len() != 0 {
		t.Fatalf("store should be empty after sweep, len=%d", s.Len())
	}
	if n := live.Sweep(ident.NowMillis()); n != 0 {
		t.Fatalf("live entry swept early: %d", n)
	}
	if _, err := live.Take(liveID); err != nil {
		t.Fatalf("live entry should survive sweep: %v", err)
	}
}

func TestOneTime_ConcurrentTake_ExactlyOneWinner(t *testing.T) {
	s := NewOneTime(time.Hour)
	id := s.Put([]byte("contested"))

	const callers = 32
	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			<-start
			if _, err := s.Take(id); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one successful take, got %d", wins)
	}
}
