package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultMonnifyBaseURL = "https://sandbox.monnify.com"
	monnifyTimeLayout     = "2006-01-02 15:04:05"
)

// MonnifyLogger defines the logging contract for Monnify provider operations.
type MonnifyLogger func(ctx context.Context, event string, fields map[string]any)

// MonnifyProviderConfig configures the MonnifyProvider.
type MonnifyProviderConfig struct {
	BaseURL      string
	APIKey       string
	SecretKey    string
	ContractCode string
	TestMode     bool
	HTTPClient   *http.Client
	Logger       MonnifyLogger
	Clock        func() time.Time
}

// MonnifyProvider talks to the Monnify merchant REST API.
type MonnifyProvider struct {
	baseURL      string
	apiKey       string
	secretKey    string
	contractCode string
	testMode     bool
	http         *http.Client
	logger       MonnifyLogger
	clock        func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var _ Provider = (*MonnifyProvider)(nil)

// NewMonnifyProvider constructs a Monnify provider.
func NewMonnifyProvider(cfg MonnifyProviderConfig) (*MonnifyProvider, error) {
	if strings.TrimSpace(cfg.APIKey) == "" || strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New("monnify: api key and secret key are required")
	}
	if strings.TrimSpace(cfg.ContractCode) == "" {
		return nil, errors.New("monnify: contract code is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultMonnifyBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &MonnifyProvider{
		baseURL:      baseURL,
		apiKey:       strings.TrimSpace(cfg.APIKey),
		secretKey:    strings.TrimSpace(cfg.SecretKey),
		contractCode: strings.TrimSpace(cfg.ContractCode),
		testMode:     cfg.TestMode,
		http:         httpClient,
		logger:       logger,
		clock:        func() time.Time { return clock().UTC() },
	}, nil
}

type monnifyEnvelope struct {
	RequestSuccessful bool            `json:"requestSuccessful"`
	ResponseMessage   string          `json:"responseMessage"`
	ResponseCode      string          `json:"responseCode"`
	ResponseBody      json.RawMessage `json:"responseBody"`
}

type monnifyInitRequest struct {
	Amount             json.Number       `json:"amount"`
	CustomerName       string            `json:"customerName"`
	CustomerEmail      string            `json:"customerEmail"`
	PaymentReference   string            `json:"paymentReference"`
	PaymentDescription string            `json:"paymentDescription"`
	CurrencyCode       string            `json:"currencyCode"`
	ContractCode       string            `json:"contractCode"`
	RedirectURL        string            `json:"redirectUrl,omitempty"`
	PaymentMethods     []string          `json:"paymentMethods"`
	MetaData           map[string]string `json:"metaData,omitempty"`
}

type monnifyInitResponse struct {
	TransactionReference string `json:"transactionReference"`
	PaymentReference     string `json:"paymentReference"`
	CheckoutURL          string `json:"checkoutUrl"`
}

type monnifyTransaction struct {
	TransactionReference string          `json:"transactionReference"`
	PaymentReference     string          `json:"paymentReference"`
	AmountPaid           decimal.Decimal `json:"amountPaid"`
	TotalPayable         decimal.Decimal `json:"totalPayable"`
	PaymentStatus        string          `json:"paymentStatus"`
	Currency             string          `json:"currency"`
	CurrencyCode         string          `json:"currencyCode"`
	PaidOn               string          `json:"paidOn"`
}

// Initialize registers the transaction with Monnify and returns the checkout URL plus the
// configuration for the browser SDK.
func (p *MonnifyProvider) Initialize(ctx context.Context, req InitRequest) (Initialization, error) {
	if req.Amount <= 0 {
		return Initialization{}, errors.New("monnify: amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "NGN"
	}
	amount := decimal.NewFromInt(req.Amount).StringFixed(2)
	body := monnifyInitRequest{
		Amount:             json.Number(amount),
		CustomerName:       req.CustomerName,
		CustomerEmail:      req.CustomerEmail,
		PaymentReference:   req.Reference,
		PaymentDescription: req.Description,
		CurrencyCode:       currency,
		ContractCode:       p.contractCode,
		RedirectURL:        req.RedirectURL,
		PaymentMethods:     []string{"CARD", "ACCOUNT_TRANSFER"},
		MetaData:           req.Metadata,
	}
	var resp monnifyInitResponse
	if err := p.call(ctx, http.MethodPost, "/api/v1/merchant/transactions/init-transaction", body, &resp); err != nil {
		return Initialization{}, fmt.Errorf("monnify: init transaction: %w", err)
	}

	p.logger(ctx, "payments.monnify.transaction.initialised", map[string]any{
		"paymentReference":     req.Reference,
		"transactionReference": resp.TransactionReference,
		"amount":               amount,
	})

	return Initialization{
		Provider:          ProviderMonnify,
		Reference:         req.Reference,
		ProviderReference: resp.TransactionReference,
		CheckoutURL:       resp.CheckoutURL,
		Widget: map[string]any{
			"apiKey":               p.apiKey,
			"contractCode":         p.contractCode,
			"amount":               req.Amount,
			"currency":             currency,
			"reference":            req.Reference,
			"customerFullName":     req.CustomerName,
			"customerEmail":        req.CustomerEmail,
			"customerMobileNumber": req.CustomerPhone,
			"paymentDescription":   req.Description,
			"isTestMode":           p.testMode,
		},
	}, nil
}

// LookupPayment queries the transaction status by payment reference.
func (p *MonnifyProvider) LookupPayment(ctx context.Context, req LookupRequest) (PaymentDetails, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return PaymentDetails{}, errors.New("monnify: payment reference is required")
	}
	var tx monnifyTransaction
	path := "/api/v2/merchant/transactions/query?paymentReference=" + url.QueryEscape(reference)
	if err := p.call(ctx, http.MethodGet, path, nil, &tx); err != nil {
		return PaymentDetails{}, fmt.Errorf("monnify: query transaction: %w", err)
	}
	return tx.details(), nil
}

// ParseMonnifyWebhook decodes a (signature-verified) webhook body into payment details.
func ParseMonnifyWebhook(body []byte) (PaymentDetails, error) {
	var event struct {
		EventType string             `json:"eventType"`
		EventData monnifyTransaction `json:"eventData"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return PaymentDetails{}, fmt.Errorf("monnify: decode webhook: %w", err)
	}
	if strings.TrimSpace(event.EventData.PaymentReference) == "" {
		return PaymentDetails{}, errors.New("monnify: webhook missing payment reference")
	}
	details := event.EventData.details()
	if event.EventType == "SUCCESSFUL_TRANSACTION" && details.Status == StatusPending {
		details.Status = StatusPaid
	}
	return details, nil
}

func (t monnifyTransaction) details() PaymentDetails {
	currency := t.CurrencyCode
	if currency == "" {
		currency = t.Currency
	}
	details := PaymentDetails{
		Provider:             ProviderMonnify,
		Reference:            t.PaymentReference,
		TransactionReference: t.TransactionReference,
		Status:               monnifyStatus(t.PaymentStatus),
		Amount:               t.AmountPaid.Round(0).IntPart(),
		Currency:             strings.ToUpper(currency),
	}
	if paidOn, err := time.Parse(monnifyTimeLayout, strings.TrimSpace(t.PaidOn)); err == nil {
		paidOn = paidOn.UTC()
		details.PaidAt = &paidOn
	} else if paidOn, err := time.Parse(time.RFC3339, strings.TrimSpace(t.PaidOn)); err == nil {
		paidOn = paidOn.UTC()
		details.PaidAt = &paidOn
	}
	return details
}

func monnifyStatus(raw string) Status {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "PAID", "OVERPAID":
		return StatusPaid
	case "EXPIRED", "CANCELLED", "ABANDONED":
		return StatusCancelled
	case "FAILED", "REVERSED":
		return StatusFailed
	default:
		return StatusPending
	}
}

func (p *MonnifyProvider) call(ctx context.Context, method, path string, in any, out any) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return p.do(req, out)
}

func (p *MonnifyProvider) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accessToken != "" && p.clock().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/v1/auth/login", nil)
	if err != nil {
		return "", err
	}
	credentials := base64.StdEncoding.EncodeToString([]byte(p.apiKey + ":" + p.secretKey))
	req.Header.Set("Authorization", "Basic "+credentials)

	var login struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
	}
	if err := p.do(req, &login); err != nil {
		return "", fmt.Errorf("monnify: login: %w", err)
	}
	if login.AccessToken == "" {
		return "", errors.New("monnify: login returned empty token")
	}
	ttl := time.Duration(login.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	p.accessToken = login.AccessToken
	p.tokenExpiry = p.clock().Add(ttl - 30*time.Second)
	return p.accessToken, nil
}

func (p *MonnifyProvider) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var envelope monnifyEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !envelope.RequestSuccessful {
		return fmt.Errorf("status %d: %s %s", resp.StatusCode, envelope.ResponseCode, envelope.ResponseMessage)
	}
	if out == nil || len(envelope.ResponseBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.ResponseBody, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}
