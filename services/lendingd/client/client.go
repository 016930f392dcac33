package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"remitlend/native/collateral"
)

// APIError is a non-2xx response from lendingd.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("lendingd: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("lendingd: %d: %s", e.Status, e.Message)
}

// Client provides typed helpers over the lendingd HTTP API.
type Client struct {
	base  string
	token string
	http  *http.Client
}

type Option func(*Client)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New returns a client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("base url %q must include scheme and host", baseURL)
	}
	c := &Client{
		base: strings.TrimRight(parsed.String(), "/"),
		http: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type Pool struct {
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

type Lender struct {
	Lender           string `json:"lender"`
	Principal        string `json:"principal"`
	DepositTimestamp uint64 `json:"depositTimestamp"`
	ShareBps         uint32 `json:"shareBps"`
	PendingInterest  string `json:"pendingInterest"`
}

type Loan struct {
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

type Credential struct {
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

type Verification struct {
	User         string `json:"user"`
	Provider     string `json:"provider"`
	AccountID    string `json:"accountId"`
	RequestedAt  uint64 `json:"requestedAt"`
	Status       string `json:"status"`
	CredentialID uint64 `json:"credentialId,omitempty"`
}

type Event struct {
	ID         string            `json:"id"`
	Sequence   uint64            `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	CreatedAt  time.Time         `json:"createdAt"`
}

// Attestation is the oracle's report of a user's remittance history.
type Attestation struct {
	User          string                     `json:"user"`
	MonthlyAmount string                     `json:"monthlyAmount"`
	HistoryMonths uint32                     `json:"historyMonths"`
	TotalSent     string                     `json:"totalSent"`
	History       []collateral.PaymentRecord `json:"history"`
}

// Remittance is an observed transfer routed towards a loan.
type Remittance struct {
	User         string `json:"user"`
	CredentialID uint64 `json:"credentialId"`
	Amount       string `json:"amount"`
	LoanID       uint64 `json:"loanId"`
	Reference    string `json:"reference"`
}

func (c *Client) Pool(ctx context.Context) (*Pool, error) {
	var out Pool
	return &out, c.do(ctx, http.MethodGet, "/v1/pool", nil, &out)
}

func (c *Client) Lender(ctx context.Context, addr string) (*Lender, error) {
	var out Lender
	return &out, c.do(ctx, http.MethodGet, "/v1/pool/lenders/"+url.PathEscape(addr), nil, &out)
}

func (c *Client) Deposit(ctx context.Context, amount string) error {
	return c.do(ctx, http.MethodPost, "/v1/pool/deposit", map[string]string{"amount": amount}, nil)
}

// Withdraw returns the interest paid out with the principal.
func (c *Client) Withdraw(ctx context.Context, amount string) (string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodPost, "/v1/pool/withdraw", map[string]string{"amount": amount}, &out); err != nil {
		return "", err
	}
	return out["interest"], nil
}

func (c *Client) ClaimInterest(ctx context.Context) (string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodPost, "/v1/pool/claim", struct{}{}, &out); err != nil {
		return "", err
	}
	return out["interest"], nil
}

func (c *Client) RequestLoan(ctx context.Context, collateralID uint64, amount string, months uint32) (*Loan, error) {
	var out Loan
	body := map[string]interface{}{"collateralId": collateralID, "amount": amount, "durationMonths": months}
	return &out, c.do(ctx, http.MethodPost, "/v1/loans", body, &out)
}

func (c *Client) ApproveLoan(ctx context.Context, id uint64) (*Loan, error) {
	var out Loan
	return &out, c.do(ctx, http.MethodPost, loanPath(id)+"/approve", nil, &out)
}

func (c *Client) MakePayment(ctx context.Context, id uint64, amount string) (*Loan, error) {
	var out Loan
	return &out, c.do(ctx, http.MethodPost, loanPath(id)+"/payments", map[string]string{"amount": amount}, &out)
}

func (c *Client) Loan(ctx context.Context, id uint64) (*Loan, error) {
	var out Loan
	return &out, c.do(ctx, http.MethodGet, loanPath(id), nil, &out)
}

func (c *Client) BorrowerLoans(ctx context.Context, borrower string) ([]Loan, error) {
	var out struct {
		Loans []Loan `json:"loans"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/borrowers/"+url.PathEscape(borrower)+"/loans", nil, &out); err != nil {
		return nil, err
	}
	return out.Loans, nil
}

func (c *Client) RequestVerification(ctx context.Context, provider, accountID string) (*Verification, error) {
	var out Verification
	body := map[string]string{"provider": provider, "accountId": accountID}
	return &out, c.do(ctx, http.MethodPost, "/v1/verifications", body, &out)
}

func (c *Client) Verification(ctx context.Context, user string) (*Verification, error) {
	var out Verification
	return &out, c.do(ctx, http.MethodGet, "/v1/verifications/"+url.PathEscape(user), nil, &out)
}

// SubmitVerification mints the attested user's credential.
func (c *Client) SubmitVerification(ctx context.Context, att Attestation) (*Credential, error) {
	var out Credential
	return &out, c.do(ctx, http.MethodPost, "/v1/oracle/verifications", att, &out)
}

func (c *Client) RejectVerification(ctx context.Context, user, reason string) (*Verification, error) {
	var out Verification
	body := map[string]string{"user": user, "reason": reason}
	return &out, c.do(ctx, http.MethodPost, "/v1/oracle/verifications/reject", body, &out)
}

// ReportRemittance returns the part of the remittance the loan did not consume.
func (c *Client) ReportRemittance(ctx context.Context, r Remittance) (string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodPost, "/v1/oracle/remittances", r, &out); err != nil {
		return "", err
	}
	return out["leftover"], nil
}

func (c *Client) ReportMissedPayment(ctx context.Context, loanID, credentialID uint64) (*Loan, error) {
	var out Loan
	body := map[string]uint64{"loanId": loanID, "credentialId": credentialID}
	return &out, c.do(ctx, http.MethodPost, "/v1/oracle/missed", body, &out)
}

func (c *Client) StartMonitoring(ctx context.Context, loanID uint64) error {
	return c.do(ctx, http.MethodPost, "/v1/oracle/monitoring", map[string]uint64{"loanId": loanID}, nil)
}

// Credential fetches a credential. A non-zero months also appraises it for a
// loan of that duration.
func (c *Client) Credential(ctx context.Context, id uint64, months uint32) (*Credential, error) {
	path := "/v1/credentials/" + strconv.FormatUint(id, 10)
	if months > 0 {
		path += "?months=" + strconv.FormatUint(uint64(months), 10)
	}
	var out Credential
	return &out, c.do(ctx, http.MethodGet, path, nil, &out)
}

func (c *Client) Balance(ctx context.Context, addr string) (string, error) {
	var out map[string]string
	if err := c.do(ctx, http.MethodGet, "/v1/balances/"+url.PathEscape(addr), nil, &out); err != nil {
		return "", err
	}
	return out["balance"], nil
}

func (c *Client) Events(ctx context.Context, kind string, limit int) ([]Event, error) {
	query := url.Values{}
	if kind != "" {
		query.Set("type", kind)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	path := "/v1/events"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *Client) Mint(ctx context.Context, to, amount string) error {
	return c.do(ctx, http.MethodPost, "/v1/admin/mint", map[string]string{"to": to, "amount": amount}, nil)
}

func loanPath(id uint64) string {
	return "/v1/loans/" + strconv.FormatUint(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if c == nil {
		return errors.New("lendingd: nil client")
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if jsonErr := json.Unmarshal(data, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
