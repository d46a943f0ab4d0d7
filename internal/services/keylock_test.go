package services

import (
	"sync"
	"testing"
)

func TestKeyLock_SerializesPerKey(t *testing.T) {
	var kl keyLock
	var wg sync.WaitGroup
	counter := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := kl.Lock(7)
			v := counter
			counter = v + 1
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("counter = %d; want 50", counter)
	}
	if kl.size() != 0 {
		t.Fatalf("expected entries to be released, have %d", kl.size())
	}
}

func TestKeyLock_IndependentKeys(t *testing.T) {
	var kl keyLock
	a := kl.Lock(1)
	done := make(chan struct{})
	go func() {
		b := kl.Lock(2) // must not block on key 1
		b()
		close(done)
	}()
	<-done
	a()
}
