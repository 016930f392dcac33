package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"remitlend/core"
	"remitlend/crypto"
	"remitlend/native/collateral"
	"remitlend/native/common"
	"remitlend/native/loans"
	"remitlend/native/verifier"
)

const requestLimit = 1 << 20 // 1 MiB

func decodeRequest(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// parseAmount reads a base-10 integer amount. Malformed input maps to
// ErrInvalidAmount so the caller sees the ledger's own error kind.
func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: amount required", common.ErrInvalidAmount)
	}
	v, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q is not an integer", common.ErrInvalidAmount, raw)
	}
	return v, nil
}

func parseAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %v", common.ErrInvalidAmount, err)
	}
	return addr, nil
}

func pathAddress(r *http.Request, key string) (crypto.Address, error) {
	return parseAddress(chi.URLParam(r, key))
}

func pathUint(r *http.Request, key string) (uint64, error) {
	v, err := strconv.ParseUint(chi.URLParam(r, key), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an unsigned integer", common.ErrInvalidAmount, key)
	}
	return v, nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type loanRequest struct {
	CollateralID   uint64 `json:"collateralId"`
	Amount         string `json:"amount"`
	DurationMonths uint32 `json:"durationMonths"`
}

type verificationRequest struct {
	Provider  string `json:"provider"`
	AccountID string `json:"accountId"`
}

type submitVerificationRequest struct {
	User          string                     `json:"user"`
	MonthlyAmount string                     `json:"monthlyAmount"`
	HistoryMonths uint32                     `json:"historyMonths"`
	TotalSent     string                     `json:"totalSent"`
	History       []collateral.PaymentRecord `json:"history"`
}

type rejectVerificationRequest struct {
	User   string `json:"user"`
	Reason string `json:"reason"`
}

type remittanceRequest struct {
	User         string `json:"user"`
	CredentialID uint64 `json:"credentialId"`
	Amount       string `json:"amount"`
	LoanID       uint64 `json:"loanId"`
	Reference    string `json:"reference"`
}

type missedPaymentRequest struct {
	LoanID       uint64 `json:"loanId"`
	CredentialID uint64 `json:"credentialId"`
}

type monitoringRequest struct {
	LoanID uint64 `json:"loanId"`
}

type mintRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type poolView struct {
	Asset               string `json:"asset"`
	TotalLiquidity      string `json:"totalLiquidity"`
	TotalBorrowed       string `json:"totalBorrowed"`
	AvailableLiquidity  string `json:"availableLiquidity"`
	TotalInterestEarned string `json:"totalInterestEarned"`
	TotalInterestPaid   string `json:"totalInterestPaid"`
	BaseRateBps         uint32 `json:"baseRateBps"`
	MaxUtilizationBps   uint32 `json:"maxUtilizationBps"`
	UtilizationBps      uint32 `json:"utilizationBps"`
}

func newPoolView(s *core.PoolSummary) poolView {
	return poolView{
		Asset:               s.State.Asset,
		TotalLiquidity:      amountString(s.State.TotalLiquidity),
		TotalBorrowed:       amountString(s.State.TotalBorrowed),
		AvailableLiquidity:  amountString(s.Available),
		TotalInterestEarned: amountString(s.State.TotalInterestEarned),
		TotalInterestPaid:   amountString(s.State.TotalInterestPaid),
		BaseRateBps:         s.State.BaseRateBps,
		MaxUtilizationBps:   s.State.MaxUtilizationBps,
		UtilizationBps:      s.UtilizationBps,
	}
}

type lenderView struct {
	Lender           string `json:"lender"`
	Principal        string `json:"principal"`
	DepositTimestamp uint64 `json:"depositTimestamp"`
	ShareBps         uint32 `json:"shareBps"`
	PendingInterest  string `json:"pendingInterest"`
}

func newLenderView(lender crypto.Address, s *core.LenderSummary) lenderView {
	return lenderView{
		Lender:           lender.String(),
		Principal:        amountString(s.Position.Principal),
		DepositTimestamp: s.Position.DepositTimestamp,
		ShareBps:         s.Position.ShareBps,
		PendingInterest:  amountString(s.Pending),
	}
}

type loanView struct {
	ID             uint64 `json:"id"`
	Borrower       string `json:"borrower"`
	CollateralID   uint64 `json:"collateralId"`
	Principal      string `json:"principal"`
	Outstanding    string `json:"outstanding"`
	TotalRepaid    string `json:"totalRepaid"`
	APRBps         uint32 `json:"aprBps"`
	DurationMonths uint32 `json:"durationMonths"`
	MonthlyPayment string `json:"monthlyPayment"`
	StartTime      uint64 `json:"startTime"`
	NextDue        uint64 `json:"nextDue"`
	Status         string `json:"status"`
	PaymentsMade   uint32 `json:"paymentsMade"`
	PaymentsMissed uint32 `json:"paymentsMissed"`
}

func newLoanView(l *loans.Loan) loanView {
	return loanView{
		ID:             l.ID,
		Borrower:       l.Borrower.String(),
		CollateralID:   l.CollateralID,
		Principal:      amountString(l.Principal),
		Outstanding:    amountString(l.Outstanding),
		TotalRepaid:    amountString(l.TotalRepaid),
		APRBps:         l.APRBps,
		DurationMonths: l.DurationMonths,
		MonthlyPayment: amountString(l.MonthlyPayment),
		StartTime:      l.StartTime,
		NextDue:        l.NextDue,
		Status:         l.Status.String(),
		PaymentsMade:   l.PaymentsMade,
		PaymentsMissed: l.PaymentsMissed,
	}
}

type credentialView struct {
	ID                     uint64                     `json:"id"`
	Owner                  string                     `json:"owner"`
	MonthlyAmount          string                     `json:"monthlyAmount"`
	Score                  uint32                     `json:"score"`
	HistoryMonths          uint32                     `json:"historyMonths"`
	TotalSent              string                     `json:"totalSent"`
	LastRemittance         uint64                     `json:"lastRemittance"`
	LifetimeMissedPayments uint32                     `json:"lifetimeMissedPayments"`
	Staked                 bool                       `json:"staked"`
	StakedLoan             uint64                     `json:"stakedLoan,omitempty"`
	History                []collateral.PaymentRecord `json:"history"`
	CollateralValue        string                     `json:"collateralValue,omitempty"`
}

func newCredentialView(c *collateral.Credential, history []collateral.PaymentRecord) credentialView {
	if history == nil {
		history = []collateral.PaymentRecord{}
	}
	return credentialView{
		ID:                     c.ID,
		Owner:                  c.Owner.String(),
		MonthlyAmount:          amountString(c.MonthlyAmount),
		Score:                  c.Score,
		HistoryMonths:          c.HistoryMonths,
		TotalSent:              amountString(c.TotalSent),
		LastRemittance:         c.LastRemittance,
		LifetimeMissedPayments: c.LifetimeMissedPayments,
		Staked:                 c.Staked,
		StakedLoan:             c.StakedLoan,
		History:                history,
	}
}

type verificationView struct {
	User         string `json:"user"`
	Provider     string `json:"provider"`
	AccountID    string `json:"accountId"`
	RequestedAt  uint64 `json:"requestedAt"`
	Status       string `json:"status"`
	CredentialID uint64 `json:"credentialId,omitempty"`
}

func newVerificationView(req *verifier.Request) verificationView {
	return verificationView{
		User:         req.User.String(),
		Provider:     req.Provider,
		AccountID:    req.AccountID,
		RequestedAt:  req.RequestedAt,
		Status:       req.Status.String(),
		CredentialID: req.CredentialID,
	}
}
