package api

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/example/webank/internal/auth"
	"github.com/example/webank/internal/bank"
	"github.com/example/webank/internal/security"
	"github.com/example/webank/pkg/audit"
)

// BankService is the slice of the transaction processor the API consumes.
type BankService interface {
	Register(ctx context.Context, email, mobile, passwordHash string) (*bank.Account, error)
	GetAccount(ctx context.Context, id string) (*bank.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*bank.Account, error)
	History(ctx context.Context, accountID string) ([]bank.Transaction, error)
	Deposit(ctx context.Context, accountID string, amount decimal.Decimal) (*bank.Account, error)
	Withdraw(ctx context.Context, accountID string, amount decimal.Decimal) (*bank.Account, error)
	Transfer(ctx context.Context, senderID, receiverID string, amount decimal.Decimal) (*bank.Account, error)
}

type Auditor interface {
	Append(payload string) *audit.LogEntry
}

type Dependencies struct {
	Logger *slog.Logger

	Bank         BankService
	Keys         *auth.KeySet
	TokenIssuer  *auth.TokenIssuer
	JWTValidator *auth.JWTValidator

	Auditor      Auditor
	RateLimiter  *security.RedisTokenBucket
	IPAllowlist  []*net.IPNet
	MaxBodyBytes int64
}

// NewRouter builds the HTTP surface: public registration/login plus the
// authenticated money-movement endpoints under /v1.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	registerV, err := security.NewJSONSchemaValidator(registerSchema)
	if err != nil {
		return nil, err
	}
	loginV, err := security.NewJSONSchemaValidator(loginSchema)
	if err != nil {
		return nil, err
	}
	depositV, err := security.NewJSONSchemaValidator(depositSchema)
	if err != nil {
		return nil, err
	}
	withdrawV, err := security.NewJSONSchemaValidator(withdrawSchema)
	if err != nil {
		return nil, err
	}
	transferV, err := security.NewJSONSchemaValidator(transferSchema)
	if err != nil {
		return nil, err
	}

	onAuthError := func(w http.ResponseWriter, r *http.Request, status int, code string) {
		security.WriteJSONError(w, r, status, code)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(security.CorrelationID)
	r.Use(RequestLogger(deps.Logger))
	r.Use(security.BodySizeLimit(deps.MaxBodyBytes))
	r.Use(security.IPAllowlist(deps.IPAllowlist))
	if deps.RateLimiter != nil {
		r.Use(security.RateLimitMiddleware(deps.RateLimiter, rateLimitKeyByIP))
	}
	if deps.Auditor != nil {
		r.Use(AuditMiddleware(deps.Auditor))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(registerV.Middleware).Post("/register", handleRegister(deps))
		r.With(loginV.Middleware).Post("/login", handleLogin(deps))
		r.Get("/jwks.json", handleJWKS(deps))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(deps.JWTValidator, onAuthError))

		r.Get("/account", handleGetAccount(deps))
		r.Get("/transactions", handleListTransactions(deps))

		r.With(depositV.Middleware).Post("/deposit", handleDeposit(deps))
		r.With(withdrawV.Middleware).Post("/withdraw", handleWithdraw(deps))
		r.With(transferV.Middleware).Post("/transfer", handleTransfer(deps))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusNotFound, "not_found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		security.WriteJSONError(w, r, http.StatusMethodNotAllowed, "method_not_allowed")
	})

	return r, nil
}

func rateLimitKeyByIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	return "ip:" + host
}
