package ledger_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/orenretail/ledger-engine/ledger"
)

func TestKeyedLock_SerializesSameKey(t *testing.T) {
	// Two goroutines hammering the same (date, target) must never be in
	// the critical section at once.

	locks := ledger.NewKeyedLock()
	d := ledger.NewDate(2025, time.March, 10)

	var inside, maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := locks.AcquireTargets(d, []ledger.PaymentTarget{ledger.Cash()})
			defer release()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
}

func TestKeyedLock_OverlappingSetsDoNotDeadlock(t *testing.T) {
	// Goroutine A locks {cash, bank}, B locks {bank, cash}. Sorted-order
	// acquisition means both finish.

	locks := ledger.NewKeyedLock()
	d := ledger.NewDate(2025, time.March, 10)
	cash, bank := ledger.Cash(), ledger.Bank("acct-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				release := locks.AcquireTargets(d, []ledger.PaymentTarget{cash, bank})
				release()
			}()
			go func() {
				defer wg.Done()
				release := locks.AcquireTargets(d, []ledger.PaymentTarget{bank, cash})
				release()
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock: overlapping lock sets never completed")
	}
}

func TestKeyedLock_DuplicateTargetsAcquireOnce(t *testing.T) {
	locks := ledger.NewKeyedLock()
	d := ledger.NewDate(2025, time.March, 10)

	// Would self-deadlock if the duplicate were locked twice.
	release := locks.AcquireTargets(d, []ledger.PaymentTarget{ledger.Cash(), ledger.Cash()})
	release()
}

func TestKeyedLock_DifferentDatesAreIndependent(t *testing.T) {
	locks := ledger.NewKeyedLock()

	r1 := locks.AcquireTargets(ledger.NewDate(2025, time.March, 10), []ledger.PaymentTarget{ledger.Cash()})
	defer r1()

	// Same target, different date: must not block.
	acquired := make(chan struct{})
	go func() {
		r2 := locks.AcquireTargets(ledger.NewDate(2025, time.March, 11), []ledger.PaymentTarget{ledger.Cash()})
		r2()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on a different date blocked")
	}
}
