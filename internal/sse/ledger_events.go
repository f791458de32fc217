package sse

import (
	"context"
	"sync"

	"eco-tiket/internal/models"
)

// LedgerEventEmitter manages SSE connections and broadcasts ledger
// transactions to dashboard clients as they commit.
type LedgerEventEmitter struct {
	// Per-account clients - key: accountID, value: slice of client channels
	accountClients     map[string][]chan models.Transaction
	accountClientMutex sync.RWMutex

	// Firehose clients receiving every transaction (admin dashboard)
	allClients     []chan models.Transaction
	allClientMutex sync.RWMutex
}

// NewLedgerEventEmitter creates a new SSE event emitter for ledger events.
func NewLedgerEventEmitter() *LedgerEventEmitter {
	return &LedgerEventEmitter{
		accountClients: make(map[string][]chan models.Transaction),
	}
}

// SubscribeToAccount adds a client to one account's transaction feed.
func (e *LedgerEventEmitter) SubscribeToAccount(ctx context.Context, accountID string) chan models.Transaction {
	clientChan := make(chan models.Transaction, 10)

	e.accountClientMutex.Lock()
	e.accountClients[accountID] = append(e.accountClients[accountID], clientChan)
	e.accountClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeAccountClient(accountID, clientChan)
	}()

	return clientChan
}

// SubscribeToAll adds a client to the firehose feed.
func (e *LedgerEventEmitter) SubscribeToAll(ctx context.Context) chan models.Transaction {
	clientChan := make(chan models.Transaction, 10)

	e.allClientMutex.Lock()
	e.allClients = append(e.allClients, clientChan)
	e.allClientMutex.Unlock()

	go func() {
		<-ctx.Done()
		e.removeAllClient(clientChan)
	}()

	return clientChan
}

// Emit broadcasts a committed transaction to all interested clients.
// Slow clients are skipped rather than blocking the ledger path.
func (e *LedgerEventEmitter) Emit(tx models.Transaction) {
	e.accountClientMutex.RLock()
	for _, clientChan := range e.accountClients[tx.AccountID] {
		select {
		case clientChan <- tx:
		default:
		}
	}
	e.accountClientMutex.RUnlock()

	e.allClientMutex.RLock()
	for _, clientChan := range e.allClients {
		select {
		case clientChan <- tx:
		default:
		}
	}
	e.allClientMutex.RUnlock()
}

func (e *LedgerEventEmitter) removeAccountClient(accountID string, clientChan chan models.Transaction) {
	e.accountClientMutex.Lock()
	defer e.accountClientMutex.Unlock()

	clients := e.accountClients[accountID]
	for i, c := range clients {
		if c == clientChan {
			e.accountClients[accountID] = append(clients[:i], clients[i+1:]...)
			close(c)
			break
		}
	}
	if len(e.accountClients[accountID]) == 0 {
		delete(e.accountClients, accountID)
	}
}

func (e *LedgerEventEmitter) removeAllClient(clientChan chan models.Transaction) {
	e.allClientMutex.Lock()
	defer e.allClientMutex.Unlock()

	for i, c := range e.allClients {
		if c == clientChan {
			e.allClients = append(e.allClients[:i], e.allClients[i+1:]...)
			close(c)
			break
		}
	}
}
