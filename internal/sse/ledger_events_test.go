package sse_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eco-tiket/internal/models"
	"eco-tiket/internal/sse"
)

func TestAccountSubscriptionReceivesOwnEventsOnly(t *testing.T) {
	emitter := sse.NewLedgerEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := emitter.SubscribeToAccount(ctx, "acc_a")

	emitter.Emit(models.Transaction{ID: "trx_a", AccountID: "acc_a", Type: models.TxBottleExchange})
	emitter.Emit(models.Transaction{ID: "trx_b", AccountID: "acc_b", Type: models.TxTicketUsage})

	select {
	case tx := <-events:
		assert.Equal(t, "trx_a", tx.ID)
	case <-time.After(time.Second):
		t.Fatal("expected an event for acc_a")
	}

	select {
	case tx := <-events:
		t.Fatalf("unexpected event %s for another account", tx.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFirehoseReceivesEverything(t *testing.T) {
	emitter := sse.NewLedgerEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firehose := emitter.SubscribeToAll(ctx)

	emitter.Emit(models.Transaction{ID: "trx_1", AccountID: "acc_a"})
	emitter.Emit(models.Transaction{ID: "trx_2", AccountID: "acc_b"})

	got := []string{}
	for i := 0; i < 2; i++ {
		select {
		case tx := <-firehose:
			got = append(got, tx.ID)
		case <-time.After(time.Second):
			t.Fatal("expected two events on the firehose")
		}
	}
	assert.Equal(t, []string{"trx_1", "trx_2"}, got)
}

func TestCancellationClosesSubscription(t *testing.T) {
	emitter := sse.NewLedgerEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())

	events := emitter.SubscribeToAccount(ctx, "acc_gone")
	cancel()

	// The channel closes once the removal goroutine runs.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-events:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	// Emitting afterwards must not panic.
	emitter.Emit(models.Transaction{ID: "trx_late", AccountID: "acc_gone"})
}

func TestSlowClientDoesNotBlockEmit(t *testing.T) {
	emitter := sse.NewLedgerEventEmitter()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Never read from this subscription; fill its buffer and keep going.
	emitter.SubscribeToAccount(ctx, "acc_slow")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			emitter.Emit(models.Transaction{ID: "trx_flood", AccountID: "acc_slow"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow client")
	}
}
