package shard

import (
	"sync"
	"testing"
)

type fakeBackend struct {
	name string
}

func TestNewRouter(t *testing.T) {
	r := NewRouter[*fakeBackend]()
	if r == nil {
		t.Fatal("NewRouter returned nil")
	}
	if r.Len() != 0 {
		t.Errorf("Len: got %d, want 0", r.Len())
	}
}

func TestRouter_RegisterAndFor(t *testing.T) {
	r := NewRouter[*fakeBackend]()
	b := &fakeBackend{name: "backend-0"}
	r.Register(ID(0), b)

	got, err := r.For(ID(0))
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if got != b {
		t.Errorf("For returned %v, want %v", got.name, b.name)
	}
}

func TestRouter_For_NotRegistered(t *testing.T) {
	r := NewRouter[*fakeBackend]()

	got, err := r.For(ID(99))
	if err == nil {
		t.Fatal("expected error for unregistered shard")
	}
	if got != nil {
		t.Errorf("expected zero value, got %v", got)
	}
}

func TestRouter_IDsSorted(t *testing.T) {
	r := NewRouter[string]()
	for _, id := range []ID{5, 1, 3, 0} {
		r.Register(id, "b")
	}

	ids := r.IDs()
	want := []ID{0, 1, 3, 5}
	if len(ids) != len(want) {
		t.Fatalf("IDs: got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs[%d]: got %d, want %d", i, ids[i], want[i])
		}
	}
}

func TestRouter_OverwriteRegistration(t *testing.T) {
	r := NewRouter[*fakeBackend]()
	first := &fakeBackend{name: "first"}
	second := &fakeBackend{name: "second"}

	r.Register(ID(0), first)
	r.Register(ID(0), second)

	got, err := r.For(ID(0))
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	if got != second {
		t.Error("expected second backend to overwrite first")
	}
}

func TestRouter_ConcurrentRegisterAndRead(t *testing.T) {
	r := NewRouter[*fakeBackend]()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(2)
		go func(id int) {
			defer wg.Done()
			r.Register(ID(id), &fakeBackend{name: "b"})
		}(i)
		go func(id int) {
			defer wg.Done()
			r.For(ID(id))
		}(i)
	}
	wg.Wait()

	if r.Len() != 32 {
		t.Errorf("Len: got %d, want 32", r.Len())
	}
}
