package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/example/webank/internal/auth"
	"github.com/example/webank/internal/bank"
	"github.com/example/webank/internal/security"
)

type registerRequest struct {
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	CorrelationID string        `json:"correlation_id"`
	Account       *bank.Account `json:"account"`
	AccessToken   string        `json:"access_token"`
	TokenType     string        `json:"token_type"`
	ExpiresAt     string        `json:"expires_at"`
}

type accountResponse struct {
	CorrelationID string        `json:"correlation_id"`
	Account       *bank.Account `json:"account"`
}

type transactionsResponse struct {
	CorrelationID string             `json:"correlation_id"`
	Transactions  []bank.Transaction `json:"transactions"`
}

type depositRequest struct {
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
}

type withdrawRequest struct {
	Amount string `json:"amount"`
}

type transferRequest struct {
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"`
}

type operationResponse struct {
	CorrelationID string        `json:"correlation_id"`
	Success       bool          `json:"success"`
	Operation     string        `json:"operation"`
	Account       *bank.Account `json:"account"`
}

// writeBankError maps the processor's error taxonomy onto HTTP. Business
// rejections carry a user-visible message; anything unrecognized is a
// persistence failure and stays opaque.
func writeBankError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, bank.ErrAccountNotFound):
		security.WriteJSONErrorMessage(w, r, http.StatusNotFound, "account_not_found", "Account not found.")
	case errors.Is(err, bank.ErrInsufficientBalance):
		security.WriteJSONErrorMessage(w, r, http.StatusUnprocessableEntity, "insufficient_balance", "Insufficient balance.")
	case errors.Is(err, bank.ErrSelfTransfer):
		security.WriteJSONErrorMessage(w, r, http.StatusUnprocessableEntity, "self_transfer", "Cannot transfer to your own account.")
	case errors.Is(err, bank.ErrInvalidAmount):
		security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
	case errors.Is(err, bank.ErrEmailTaken):
		security.WriteJSONErrorMessage(w, r, http.StatusConflict, "email_taken", "Email already registered.")
	default:
		security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func handleRegister(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}

		account, err := deps.Bank.Register(r.Context(), req.Email, req.Mobile, hash)
		if err != nil {
			writeBankError(w, r, err)
			return
		}

		token, expiresAt, err := deps.TokenIssuer.IssueToken(account.ID)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}

		writeJSON(w, r, http.StatusCreated, tokenResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Account:       account,
			AccessToken:   token,
			TokenType:     "Bearer",
			ExpiresAt:     expiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
}

func handleLogin(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		account, err := deps.Bank.GetAccountByEmail(r.Context(), req.Email)
		if err != nil || !auth.VerifyPassword(account.PasswordHash, req.Password) {
			// Same answer for unknown email and bad password.
			security.WriteJSONErrorMessage(w, r, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password.")
			return
		}

		token, expiresAt, err := deps.TokenIssuer.IssueToken(account.ID)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}

		writeJSON(w, r, http.StatusOK, tokenResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Account:       account,
			AccessToken:   token,
			TokenType:     "Bearer",
			ExpiresAt:     expiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		})
	}
}

func handleJWKS(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Keys == nil {
			security.WriteJSONError(w, r, http.StatusServiceUnavailable, "keys_unavailable")
			return
		}
		jwks, err := deps.Keys.JWKS()
		if err != nil {
			security.WriteJSONError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		writeJSON(w, r, http.StatusOK, jwks)
	}
}

func handleGetAccount(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := auth.AccountIDFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		account, err := deps.Bank.GetAccount(r.Context(), accountID)
		if err != nil {
			writeBankError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, accountResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Account:       account,
		})
	}
}

func handleListTransactions(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accountID, ok := auth.AccountIDFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		transactions, err := deps.Bank.History(r.Context(), accountID)
		if err != nil {
			writeBankError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, transactionsResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Transactions:  transactions,
		})
	}
}

func handleDeposit(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := auth.AccountIDFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req depositRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
			return
		}

		// Depositing into another account is allowed, matching the teller
		// flow where a deposit names its target.
		target := req.AccountID
		if target == "" {
			target = callerID
		}

		account, err := deps.Bank.Deposit(r.Context(), target, amount)
		if err != nil {
			writeBankError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, operationResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Operation:     "deposit",
			Account:       account,
		})
	}
}

func handleWithdraw(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := auth.AccountIDFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req withdrawRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
			return
		}

		account, err := deps.Bank.Withdraw(r.Context(), callerID, amount)
		if err != nil {
			writeBankError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, operationResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Operation:     "withdraw",
			Account:       account,
		})
	}
}

func handleTransfer(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callerID, ok := auth.AccountIDFromContext(r.Context())
		if !ok {
			security.WriteJSONError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req transferRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "invalid_json")
			return
		}

		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			security.WriteJSONError(w, r, http.StatusBadRequest, "validation_error")
			return
		}

		account, err := deps.Bank.Transfer(r.Context(), callerID, req.ReceiverID, amount)
		if err != nil {
			writeBankError(w, r, err)
			return
		}

		writeJSON(w, r, http.StatusOK, operationResponse{
			CorrelationID: security.CorrelationIDFromContext(r.Context()),
			Success:       true,
			Operation:     "transfer",
			Account:       account,
		})
	}
}
