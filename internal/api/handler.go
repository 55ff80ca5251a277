package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sheikh-saqib/token-ledger/internal/auth"
	"github.com/sheikh-saqib/token-ledger/internal/ledger"
	"github.com/sheikh-saqib/token-ledger/internal/models"
	"github.com/sheikh-saqib/token-ledger/internal/session"
)

// Ledger is what the handlers need from the ledger engine.
type Ledger interface {
	GrantAirdrop(ctx context.Context, accountId string, amount int64) (models.Transaction, error)
	Transfer(ctx context.Context, fromId, toId string, amount decimal.Decimal) (ledger.TransferResult, error)
	GetBalance(ctx context.Context, accountId string) (string, error)
	GetHistory(ctx context.Context, accountId string) ([]models.Transaction, error)
	Account(ctx context.Context, accountId string) (models.Account, error)
	Accounts(ctx context.Context) ([]models.Account, error)
}

type API struct {
	ledger         Ledger
	auth           *auth.Service
	sessions       *session.Manager
	airdropZennies int64
	logger         zerolog.Logger
}

func NewAPI(l Ledger, authService *auth.Service, sessions *session.Manager, airdropZennies int64, logger zerolog.Logger) *API {
	return &API{
		ledger:         l,
		auth:           authService,
		sessions:       sessions,
		airdropZennies: airdropZennies,
		logger:         logger,
	}
}

type userView struct {
	ID        string    `json:"id"`
	UserName  string    `json:"userName"`
	Balance   string    `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
}

type userDetailView struct {
	userView
	AirdropReceived bool `json:"airdropReceived"`
}

type transactionView struct {
	ID            string                 `json:"id"`
	Sender        *string                `json:"sender"`
	Recipient     string                 `json:"recipient"`
	Amount        decimal.Decimal        `json:"amount"`
	AmountZennies int64                  `json:"amountZennies"`
	Type          models.TransactionKind `json:"type"`
	CreatedAt     time.Time              `json:"createdAt"`
}

func newUserView(a models.Account) userView {
	return userView{
		ID:        a.ID,
		UserName:  a.UserName,
		Balance:   models.FormatTokens(a.Balance),
		CreatedAt: a.CreatedAt,
	}
}

func newTransactionViews(txs []models.Transaction) []transactionView {
	views := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		v := transactionView{
			ID:            tx.ID,
			Recipient:     tx.Recipient,
			Amount:        models.ZenniesToTokens(tx.Amount),
			AmountZennies: tx.Amount,
			Type:          tx.Kind,
			CreatedAt:     tx.CreatedAt,
		}
		if tx.Sender != "" {
			sender := tx.Sender
			v.Sender = &sender
		}
		views = append(views, v)
	}
	return views
}

func (api *API) writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		api.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// writeError maps every ledger failure to a stable code so clients can tell
// "insufficient funds" from "recipient missing" from "system unavailable".
func (api *API) writeError(w http.ResponseWriter, err error) {
	status, code, message := http.StatusInternalServerError, "internal", "Internal server error"

	switch {
	case errors.Is(err, models.ErrInvalidAmount):
		status, code, message = http.StatusBadRequest, "invalid_amount", "Invalid amount"
	case errors.Is(err, models.ErrSelfTransfer):
		status, code, message = http.StatusBadRequest, "self_transfer", "Cannot transfer to self"
	case errors.Is(err, models.ErrInsufficientBalance), errors.Is(err, models.ErrNegativeBalance):
		status, code, message = http.StatusBadRequest, "insufficient_balance", "Insufficient balance"
	case errors.Is(err, models.ErrAlreadyGranted):
		status, code, message = http.StatusBadRequest, "already_granted", "Airdrop already received"
	case errors.Is(err, models.ErrDuplicateIdentity):
		status, code, message = http.StatusConflict, "duplicate_identity", "User already exists"
	case errors.Is(err, models.ErrRecipientNotFound):
		status, code, message = http.StatusNotFound, "recipient_not_found", "Receiver not found"
	case errors.Is(err, models.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", "User not found"
	case errors.Is(err, auth.ErrMissingCredentials):
		status, code, message = http.StatusBadRequest, "missing_credentials", "User name and password are required"
	case errors.Is(err, auth.ErrPasswordTooLong):
		status, code, message = http.StatusBadRequest, "password_too_long", "Password must be at most 72 bytes"
	case errors.Is(err, auth.ErrInvalidCredentials):
		status, code, message = http.StatusUnauthorized, "invalid_credentials", "Invalid user name or password"
	case errors.Is(err, session.ErrNoSession):
		status, code, message = http.StatusUnauthorized, "not_logged_in", "User not logged in"
	case errors.Is(err, models.ErrStoreUnavailable):
		status, code, message = http.StatusServiceUnavailable, "store_unavailable", "Service temporarily unavailable"
	}

	if status >= http.StatusInternalServerError {
		api.logger.Error().Err(err).Msg("Request failed")
	}
	api.writeJSONResponse(w, status, errorBody{Error: code, Message: message})
}

func (api *API) notLoggedIn(w http.ResponseWriter, r *http.Request) {
	api.writeError(w, session.ErrNoSession)
}

func identity(r *http.Request) session.Identity {
	id, _ := session.FromContext(r.Context())
	return id
}

type credentials struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

func (api *API) Register(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "invalid_body", Message: "Invalid request body"})
		return
	}

	account, err := api.auth.Register(r.Context(), req.UserName, req.Password)
	if err != nil {
		api.writeError(w, err)
		return
	}

	api.writeJSONResponse(w, http.StatusCreated, map[string]string{
		"message": "User created successfully",
		"userId":  account.ID,
	})
}

func (api *API) Login(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeJSONResponse(w, http.StatusBadRequest, errorBody{Error: "invalid_body", Message: "Invalid request body"})
		return
	}

	account, err := api.auth.Login(r.Context(), req.UserName, req.Password)
	if err != nil {
		api.writeError(w, err)
		return
	}
	if err := api.sessions.Login(w, session.Identity{AccountID: account.ID, UserName: account.UserName}); err != nil {
		api.writeError(w, err)
		return
	}

	api.logger.Info().Str("account_id", account.ID).Msg("User logged in")
	api.writeJSONResponse(w, http.StatusOK, map[string]any{
		"message":    "Login successful",
		"userId":     account.ID,
		"userName":   account.UserName,
		"isLoggedIn": true,
	})
}

func (api *API) Logout(w http.ResponseWriter, r *http.Request) {
	api.sessions.Logout(w)
	api.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}

func (api *API) CheckSession(w http.ResponseWriter, r *http.Request) {
	if _, err := api.sessions.Resolve(r); err != nil {
		api.writeError(w, err)
		return
	}
	api.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "User logged in"})
}

func (api *API) ListUsers(w http.ResponseWriter, r *http.Request) {
	accounts, err := api.ledger.Accounts(r.Context())
	if err != nil {
		api.writeError(w, err)
		return
	}

	users := make([]userView, 0, len(accounts))
	for _, a := range accounts {
		users = append(users, newUserView(a))
	}
	api.writeJSONResponse(w, http.StatusOK, users)
}

func (api *API) writeUser(w http.ResponseWriter, r *http.Request, accountId string) {
	account, err := api.ledger.Account(r.Context(), accountId)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.writeJSONResponse(w, http.StatusOK, userDetailView{
		userView:        newUserView(account),
		AirdropReceived: account.AirdropGranted,
	})
}

func (api *API) Me(w http.ResponseWriter, r *http.Request) {
	api.writeUser(w, r, identity(r).AccountID)
}

func (api *API) GetUser(w http.ResponseWriter, r *http.Request) {
	api.writeUser(w, r, mux.Vars(r)["id"])
}

func (api *API) Airdrop(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if _, err := api.ledger.GrantAirdrop(r.Context(), id.AccountID, api.airdropZennies); err != nil {
		api.writeError(w, err)
		return
	}
	api.writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Airdrop successfully received"})
}

type transferRequest struct {
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

func (api *API) Transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.writeError(w, models.ErrInvalidAmount)
		return
	}

	result, err := api.ledger.Transfer(r.Context(), identity(r).AccountID, req.To, req.Amount)
	if err != nil {
		api.writeError(w, err)
		return
	}

	api.writeJSONResponse(w, http.StatusOK, map[string]string{
		"message":          "Funds transferred successfully",
		"transactionId":    result.Transaction.ID,
		"senderBalance":    models.FormatTokens(result.SenderBalance),
		"recipientBalance": models.FormatTokens(result.RecipientBalance),
	})
}

func (api *API) writeHistory(w http.ResponseWriter, r *http.Request, accountId string) {
	history, err := api.ledger.GetHistory(r.Context(), accountId)
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.writeJSONResponse(w, http.StatusOK, newTransactionViews(history))
}

func (api *API) MyTransactions(w http.ResponseWriter, r *http.Request) {
	api.writeHistory(w, r, identity(r).AccountID)
}

func (api *API) UserTransactions(w http.ResponseWriter, r *http.Request) {
	api.writeHistory(w, r, mux.Vars(r)["id"])
}

func (api *API) UserBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := api.ledger.GetBalance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		api.writeError(w, err)
		return
	}
	api.writeJSONResponse(w, http.StatusOK, map[string]string{"balance": balance})
}
