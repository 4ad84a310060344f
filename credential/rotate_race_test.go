package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestRotateRaceSingleWinner(t *testing.T) {
	store, _, done := newStoreTest(t)
	defer done()
	ctx := context.Background()

	issueRoot(t, store, "cred-race", digestOf(1))

	const workers = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(workers)

	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		childID := fmt.Sprintf("cred-child-%d", i)
		childDigest := digestOf(byte(i + 2))
		go func(childID string, childDigest [32]byte) {
			defer wg.Done()
			<-start
			_, err := store.Rotate(ctx, "t-1", "cred-race", digestOf(1), childID, childDigest, Meta{})
			results <- err
		}(childID, childDigest)
	}

	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		switch {
		case err == nil:
			success++
		case errors.Is(err, ErrReuseDetected):
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}

	if success != 1 {
		t.Fatalf("expected exactly one winner, got %d", success)
	}
}
