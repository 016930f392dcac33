package server

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remitlend/core"
	"remitlend/crypto"
	"remitlend/native/collateral"
	"remitlend/native/common"
	"remitlend/native/loans"
	"remitlend/native/verifier"
	"remitlend/services/lendingd/indexer"
)

// Ledger is the subset of core.Ledger served over HTTP.
type Ledger interface {
	Pool(ctx context.Context) (*core.PoolSummary, error)
	LenderInfo(ctx context.Context, lender crypto.Address) (*core.LenderSummary, error)
	Deposit(ctx context.Context, lender crypto.Address, amount *big.Int) error
	Withdraw(ctx context.Context, lender crypto.Address, amount *big.Int) (*big.Int, error)
	ClaimInterest(ctx context.Context, lender crypto.Address) (*big.Int, error)
	RequestLoan(ctx context.Context, borrower crypto.Address, collateralID uint64, amount *big.Int, months uint32) (uint64, error)
	ApproveLoan(ctx context.Context, caller crypto.Address, loanID uint64) error
	MakePayment(ctx context.Context, caller crypto.Address, loanID uint64, amount *big.Int) error
	Loan(ctx context.Context, loanID uint64) (*loans.Loan, error)
	LoansByBorrower(ctx context.Context, borrower crypto.Address) ([]*loans.Loan, error)
	RequestVerification(ctx context.Context, user crypto.Address, provider, accountID string) error
	SubmitVerification(ctx context.Context, operator, user crypto.Address, monthly *big.Int, historyMonths uint32, totalSent *big.Int, history []collateral.PaymentRecord) (uint64, error)
	RejectVerification(ctx context.Context, operator, user crypto.Address, reason string) error
	Verification(ctx context.Context, user crypto.Address) (*verifier.Request, error)
	StartMonitoring(ctx context.Context, caller crypto.Address, loanID uint64) error
	ReportRemittance(ctx context.Context, operator, user crypto.Address, credentialID uint64, amount *big.Int, loanID uint64, reference string) (*big.Int, error)
	ReportMissedPayment(ctx context.Context, operator crypto.Address, loanID, credentialID uint64) error
	Credential(ctx context.Context, id uint64) (*collateral.Credential, []collateral.PaymentRecord, error)
	CollateralValue(ctx context.Context, id uint64, months uint32) (*big.Int, error)
	BalanceOf(ctx context.Context, addr crypto.Address) (*big.Int, error)
	Mint(ctx context.Context, to crypto.Address, amount *big.Int) error
}

// EventLister serves the committed event feed.
type EventLister interface {
	List(ctx context.Context, kind string, limit int) ([]indexer.Event, error)
}

type Options struct {
	Logger         *slog.Logger
	RequestTimeout time.Duration
	Limiter        *RateLimiter
}

// Server exposes the ledger as a JSON API.
type Server struct {
	ledger  Ledger
	events  EventLister
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	timeout time.Duration
}

func New(ledger Ledger, events EventLister, auth *Authenticator, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Server{
		ledger:  ledger,
		events:  events,
		auth:    auth,
		limiter: opts.Limiter,
		logger:  logger,
		timeout: timeout,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(observe(s.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			s.throttle(r)
			r.Get("/pool", s.getPool)
			r.Get("/pool/lenders/{addr}", s.getLender)
			r.Get("/loans/{id}", s.getLoan)
			r.Get("/borrowers/{addr}/loans", s.getBorrowerLoans)
			r.Get("/verifications/{addr}", s.getVerification)
			r.Get("/credentials/{id}", s.getCredential)
			r.Get("/balances/{addr}", s.getBalance)
			r.Get("/events", s.listEvents)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeLender))
			s.throttle(r)
			r.Post("/pool/deposit", s.deposit)
			r.Post("/pool/withdraw", s.withdraw)
			r.Post("/pool/claim", s.claim)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeBorrower))
			s.throttle(r)
			r.Post("/loans", s.requestLoan)
			r.Post("/loans/{id}/payments", s.makePayment)
			r.Post("/verifications", s.requestVerification)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeOperator))
			s.throttle(r)
			r.Post("/loans/{id}/approve", s.approveLoan)
			r.Post("/oracle/verifications", s.submitVerification)
			r.Post("/oracle/verifications/reject", s.rejectVerification)
			r.Post("/oracle/remittances", s.reportRemittance)
			r.Post("/oracle/missed", s.reportMissed)
			r.Post("/oracle/monitoring", s.startMonitoring)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeAdmin))
			s.throttle(r)
			r.Post("/admin/mint", s.mint)
		})
	})
	return r
}

func (s *Server) throttle(r chi.Router) {
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}
}

func (s *Server) context(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, s.timeout)
}

func caller(r *http.Request) crypto.Address {
	addr, _ := CallerFromContext(r.Context())
	return addr
}

func (s *Server) getPool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.context(r.Context())
	defer cancel()
	summary, err := s.ledger.Pool(ctx)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newPoolView(summary))
}

func (s *Server) getLender(w http.ResponseWriter, r *http.Request) {
	lender, err := pathAddress(r, "addr")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	info, err := s.ledger.LenderInfo(ctx, lender)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLenderView(lender, info))
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.ledger.Deposit(ctx, caller(r), amount); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deposited": amount.String()})
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	interest, err := s.ledger.Withdraw(ctx, caller(r), amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"withdrawn": amount.String(), "interest": amountString(interest)})
}

func (s *Server) claim(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.context(r.Context())
	defer cancel()
	interest, err := s.ledger.ClaimInterest(ctx, caller(r))
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"interest": amountString(interest)})
}

func (s *Server) requestLoan(w http.ResponseWriter, r *http.Request) {
	var req loanRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	id, err := s.ledger.RequestLoan(ctx, caller(r), req.CollateralID, amount, req.DurationMonths)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	loan, err := s.ledger.Loan(ctx, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newLoanView(loan))
}

func (s *Server) approveLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.ledger.ApproveLoan(ctx, caller(r), id); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeLoan(ctx, w, id)
}

func (s *Server) makePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var req amountRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.ledger.MakePayment(ctx, caller(r), id, amount); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeLoan(ctx, w, id)
}

func (s *Server) getLoan(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	s.writeLoan(ctx, w, id)
}

func (s *Server) writeLoan(ctx context.Context, w http.ResponseWriter, id uint64) {
	loan, err := s.ledger.Loan(ctx, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newLoanView(loan))
}

func (s *Server) getBorrowerLoans(w http.ResponseWriter, r *http.Request) {
	borrower, err := pathAddress(r, "addr")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	list, err := s.ledger.LoansByBorrower(ctx, borrower)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	out := make([]loanView, 0, len(list))
	for _, loan := range list {
		out = append(out, newLoanView(loan))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loans": out})
}

func (s *Server) requestVerification(w http.ResponseWriter, r *http.Request) {
	var req verificationRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	user := caller(r)
	if err := s.ledger.RequestVerification(ctx, user, req.Provider, req.AccountID); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeVerification(ctx, w, user, http.StatusAccepted)
}

func (s *Server) getVerification(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "addr")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	s.writeVerification(ctx, w, user, http.StatusOK)
}

func (s *Server) writeVerification(ctx context.Context, w http.ResponseWriter, user crypto.Address, status int) {
	req, err := s.ledger.Verification(ctx, user)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, status, newVerificationView(req))
}

func (s *Server) submitVerification(w http.ResponseWriter, r *http.Request) {
	var req submitVerificationRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	monthly, err := parseAmount(req.MonthlyAmount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	totalSent, err := parseAmount(req.TotalSent)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	id, err := s.ledger.SubmitVerification(ctx, caller(r), user, monthly, req.HistoryMonths, totalSent, req.History)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeCredential(ctx, w, id, 0, http.StatusCreated)
}

func (s *Server) rejectVerification(w http.ResponseWriter, r *http.Request) {
	var req rejectVerificationRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.ledger.RejectVerification(ctx, caller(r), user, req.Reason); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeVerification(ctx, w, user, http.StatusOK)
}

func (s *Server) reportRemittance(w http.ResponseWriter, r *http.Request) {
	var req remittanceRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	user, err := parseAddress(req.User)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	leftover, err := s.ledger.ReportRemittance(ctx, caller(r), user, req.CredentialID, amount, req.LoanID, req.Reference)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"leftover": amountString(leftover)})
}

func (s *Server) reportMissed(w http.ResponseWriter, r *http.Request) {
	var req missedPaymentRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.ledger.ReportMissedPayment(ctx, caller(r), req.LoanID, req.CredentialID); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.writeLoan(ctx, w, req.LoanID)
}

func (s *Server) startMonitoring(w http.ResponseWriter, r *http.Request) {
	var req monitoringRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.ledger.StartMonitoring(ctx, caller(r), req.LoanID); err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"loanId": req.LoanID, "monitored": true})
}

func (s *Server) getCredential(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	var months uint32
	if raw := r.URL.Query().Get("months"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || parsed == 0 {
			writeLedgerError(w, errors.Join(common.ErrInvalidAmount, errors.New("months must be a positive integer")))
			return
		}
		months = uint32(parsed)
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	s.writeCredential(ctx, w, id, months, http.StatusOK)
}

// writeCredential renders a credential, appraised over months when non-zero.
func (s *Server) writeCredential(ctx context.Context, w http.ResponseWriter, id uint64, months uint32, status int) {
	cred, history, err := s.ledger.Credential(ctx, id)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	view := newCredentialView(cred, history)
	if months > 0 {
		value, err := s.ledger.CollateralValue(ctx, id, months)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		view.CollateralValue = value.String()
	}
	writeJSON(w, status, view)
}

func (s *Server) getBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	balance, err := s.ledger.BalanceOf(ctx, addr)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": addr.String(), "balance": amountString(balance)})
}

func (s *Server) listEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeJSONError(w, http.StatusServiceUnavailable, errors.New("event index disabled"))
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeJSONError(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	list, err := s.events.List(ctx, r.URL.Query().Get("type"), limit)
	if err != nil {
		s.logger.Error("list events", slog.String("error", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, errors.New("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": list})
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	var req mintRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	ctx, cancel := s.context(r.Context())
	defer cancel()
	if err := s.ledger.Mint(ctx, to, amount); err != nil {
		writeLedgerError(w, err)
		return
	}
	s.logger.Info("faucet mint", slog.String("to", to.String()), slog.String("amount", amount.String()), slog.String("admin", caller(r).String()))
	writeJSON(w, http.StatusOK, map[string]string{"to": to.String(), "minted": amount.String()})
}
