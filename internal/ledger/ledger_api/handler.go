package ledger_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"eco-tiket/internal/auth"
	"eco-tiket/internal/ledger"
	"eco-tiket/internal/ledger/qr"
	"eco-tiket/internal/logger"
	"eco-tiket/internal/models"
	"eco-tiket/internal/sse"
)

type Handler struct {
	LedgerService *ledger.Service
	Events        *sse.LedgerEventEmitter
	Pass          *qr.PassGenerator
	Logger        *logger.Logger
}

func actorFrom(r *http.Request) ledger.Actor {
	return ledger.Actor{
		ID:   auth.UserIDFromContext(r.Context()),
		Role: auth.RoleFromContext(r.Context()),
	}
}

// statusForError maps engine errors onto HTTP responses. Validation and
// not-found failures never mutated state; conflicts are safe to retry
// from scratch.
func statusForError(err error) int {
	switch {
	case ledger.IsValidation(err):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrPermissionDenied):
		return http.StatusForbidden
	case ledger.IsRetryable(err),
		errors.Is(err, ledger.ErrAccountExists),
		errors.Is(err, ledger.ErrAccountHasHistory),
		errors.Is(err, ledger.ErrLedgerDrift):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// ---------------- ACCOUNTS ----------------

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateAccount: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	acct, err := h.LedgerService.CreateAccount(r.Context(), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateAccount: %v", err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	h.writeJSON(w, http.StatusCreated, acct)
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	h.Logger.Info("API", fmt.Sprintf("GetAccount: accountId=%s", accountID))

	view, err := h.LedgerService.GetAccountView(r.Context(), accountID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetAccount: %v", err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, view)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	h.Logger.Info("API", fmt.Sprintf("DeleteAccount: accountId=%s", accountID))

	if err := h.LedgerService.DeleteAccount(r.Context(), accountID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteAccount: %v", err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	txs, err := h.LedgerService.Statement(r.Context(), accountID, limit)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetStatement: %v", err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, txs)
}

// GetPass renders the passenger's encrypted QR pass as a PNG.
func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	view, err := h.LedgerService.GetAccountView(r.Context(), accountID)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	png, err := h.Pass.GenerateEncryptedQR(qr.PassPayload{
		AccountID: view.Account.ID,
		FullName:  view.Account.FullName,
		IssuedAt:  time.Now(),
	})
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetPass: failed to generate QR: %v", err))
		http.Error(w, "Failed to generate pass", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetPass: failed to write response: %v", err))
	}
}

// Scan resolves scanned pass content to the passenger's account, so the
// field officer sees the balance before recording an exchange or a ride.
// QR content is AES-encrypted; anything that does not decrypt is forged
// or stale.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req models.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	payload, err := h.Pass.Decrypt(req.QRContent)
	if err != nil {
		h.Logger.Warn("API", fmt.Sprintf("Scan: pass content did not decrypt: %v", err))
		http.Error(w, "Unreadable pass", http.StatusBadRequest)
		return
	}

	view, err := h.LedgerService.GetAccountView(r.Context(), payload.AccountID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Scan: account %s: %v", payload.AccountID, err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	h.Logger.Info("API", fmt.Sprintf("Scan: resolved pass to account %s", payload.AccountID))
	h.writeJSON(w, http.StatusOK, view)
}

// ---------------- LEDGER OPERATIONS ----------------

func (h *Handler) Exchange(w http.ResponseWriter, r *http.Request) {
	var req models.ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Exchange: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Exchange: account=%s type=%s count=%d", req.AccountID, req.BottleType, req.BottleCount))

	resp, err := h.LedgerService.ExchangeBottles(r.Context(), actorFrom(r), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Exchange: %v", err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	h.writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) Use(w http.ResponseWriter, r *http.Request) {
	var req models.UsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Use: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("Use: account=%s count=%d", req.AccountID, req.TicketCount))

	resp, err := h.LedgerService.UseTickets(r.Context(), actorFrom(r), req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Use: %v", err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// Sweep triggers a forfeiture sweep for one account on demand (the
// background sweeper covers the rest).
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	resp, err := h.LedgerService.SweepExpired(r.Context(), accountID, time.Time{})
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Sweep: %v", err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionId")
	h.Logger.Info("API", fmt.Sprintf("Reverse: transactionId=%s", transactionID))

	snapshot, err := h.LedgerService.ReverseTransaction(r.Context(), actorFrom(r), transactionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Reverse: %v", err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	h.writeJSON(w, http.StatusOK, snapshot)
}

// ---------------- SSE ----------------

// StreamAccountEvents pushes the account's committed transactions to the
// passenger dashboard as server-sent events.
func (h *Handler) StreamAccountEvents(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.Events.SubscribeToAccount(r.Context(), accountID)
	h.Logger.Info("SSE", fmt.Sprintf("client subscribed to account %s", accountID))

	for {
		select {
		case <-r.Context().Done():
			return
		case tx, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(tx)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// StreamAllEvents pushes every committed transaction to the admin
// dashboard as server-sent events.
func (h *Handler) StreamAllEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events := h.Events.SubscribeToAll(r.Context())
	h.Logger.Info("SSE", "admin client subscribed to the transaction firehose")

	for {
		select {
		case <-r.Context().Done():
			return
		case tx, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(tx)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
