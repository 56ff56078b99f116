package sparebank1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vpnda/sparebank-sync/pkg/models"
)

type failingTokens struct{}

func (failingTokens) EnsureTokenValid(ctx context.Context) (string, error) {
	return "", errors.New("refresh token revoked")
}

type recordedRequest struct {
	Method      string
	Path        string
	Query       map[string]string
	Accept      string
	ContentType string
	Auth        string
	Body        map[string]any
}

// newTestServer serves handler and records every request it receives.
func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, func() []recordedRequest) {
	t.Helper()

	var mu sync.Mutex
	var reqs []recordedRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method:      r.Method,
			Path:        r.URL.Path,
			Query:       map[string]string{},
			Accept:      r.Header.Get("Accept"),
			ContentType: r.Header.Get("Content-Type"),
			Auth:        r.Header.Get("Authorization"),
		}
		for k := range r.URL.Query() {
			rec.Query[k] = r.URL.Query().Get(k)
		}
		if body, _ := io.ReadAll(r.Body); len(body) > 0 {
			_ = json.Unmarshal(body, &rec.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}
		mu.Lock()
		reqs = append(reqs, rec)
		mu.Unlock()

		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(StaticToken("test-token"), WithBaseURL(srv.URL+"/"), WithTimeout(5*time.Second))
	return client, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), reqs...)
	}
}

func TestGetAccounts(t *testing.T) {
	t.Run("Envelope response", func(t *testing.T) {
		client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"accounts": [
				{"accountNumber": "86011117947", "name": "Brukskonto", "type": "STANDARD", "currencyCode": "NOK"},
				{"accountNumber": "K1234", "creditCardAccountID": "cc-1", "name": "Mastercard", "type": "CREDITCARD", "balance": -1200.5},
				{"AccountId": "abc-123", "name": "Sparekonto", "balance": "99.9", "currencyCode": "EUR"},
				{"accountId": "def-456", "name": "BSU", "balance": {"amount": "10", "currency": "SEK"}}
			]}`))
		})

		accounts, err := client.GetAccounts(context.Background())
		require.NoError(t, err)
		require.Len(t, accounts, 4)

		assert.Equal(t, "86011117947", accounts[0].AccountNumber)
		assert.Nil(t, accounts[0].Balance)
		assert.False(t, accounts[0].InlineBalance)

		assert.Equal(t, "cc-1", accounts[1].CreditCardAccountID)
		require.NotNil(t, accounts[1].Balance)
		assert.Equal(t, "-1200.5", accounts[1].Balance.Amount)
		assert.Equal(t, "NOK", accounts[1].Balance.Currency)
		assert.True(t, accounts[1].InlineBalance)

		assert.Equal(t, "abc-123", accounts[2].AccountID)
		require.NotNil(t, accounts[2].Balance)
		assert.Equal(t, "99.9", accounts[2].Balance.Amount)
		assert.Equal(t, "EUR", accounts[2].Balance.Currency)

		assert.Equal(t, "def-456", accounts[3].AccountID)
		require.NotNil(t, accounts[3].Balance)
		assert.Equal(t, "10", accounts[3].Balance.Amount)
		assert.Equal(t, "SEK", accounts[3].Balance.Currency)

		reqs := requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, http.MethodGet, reqs[0].Method)
		assert.Equal(t, accountsPath, reqs[0].Path)
		assert.Equal(t, MediaType, reqs[0].Accept)
		assert.Equal(t, "Bearer test-token", reqs[0].Auth)
		assert.Equal(t, map[string]string{
			"includeNokAccounts":        "true",
			"includeCurrencyAccounts":   "true",
			"includeBsuAccounts":        "true",
			"includeCreditCardAccounts": "false",
			"includeAskAccounts":        "false",
			"includePensionAccounts":    "false",
		}, reqs[0].Query)
	})

	t.Run("Bare array response", func(t *testing.T) {
		client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(` [{"accountNumber": "42012345679", "name": "Felles"}]`))
		})

		accounts, err := client.GetAccounts(context.Background())
		require.NoError(t, err)
		require.Len(t, accounts, 1)
		assert.Equal(t, "Felles", accounts[0].Name)
	})

	t.Run("Token failure makes no request", func(t *testing.T) {
		client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
		client.tokens = failingTokens{}

		_, err := client.GetAccounts(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "refresh token revoked")
		assert.Empty(t, requests())
	})
}

func TestGetAccountBalances(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body balanceRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		switch body.AccountNumber {
		case "86011117947":
			_, _ = w.Write([]byte(`{"accountBalance": "1234.56"}`))
		case "42012345679":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"errors": [{"code": "internal", "message": "boom", "traceId": "t-1"}]}`))
		default:
			_, _ = w.Write([]byte(`{"somethingElse": true}`))
		}
	})

	results, err := client.GetAccountBalances(context.Background(),
		[]string{"86011117947", "42012345679", "12345678903"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results["86011117947"].OK())
	assert.Equal(t, "1234.56", results["86011117947"].AccountBalance)

	assert.False(t, results["42012345679"].OK())
	var upstream *models.UpstreamError
	require.ErrorAs(t, results["42012345679"].Err, &upstream)
	assert.Equal(t, 500, upstream.Status)
	assert.Equal(t, []string{"t-1"}, upstream.TraceIDs())

	assert.False(t, results["12345678903"].OK())

	reqs := requests()
	require.Len(t, reqs, 3)
	for _, r := range reqs {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, balancePath, r.Path)
		assert.Equal(t, MediaType, r.ContentType)
		assert.Equal(t, MediaType, r.Accept)
	}
}

func TestGetAccountBalancesTokenFailureAborts(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	client.tokens = failingTokens{}

	_, err := client.GetAccountBalances(context.Background(), []string{"86011117947", "42012345679"})
	require.Error(t, err)
	assert.False(t, models.IsAPIError(err))
	assert.Empty(t, requests())
}

func TestTransferMoney(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paymentId": "pay-42", "warnings": [{"code": "late"}]}`))
	})

	res, err := client.TransferMoney(context.Background(), models.TransferRequest{
		FromAccount: "86011117947",
		ToAccount:   "42012345679",
		Amount:      decimal.RequireFromString("10.005"),
		Currency:    "NOK",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-42", res.PaymentID)
	assert.Len(t, res.Warnings, 1)
	assert.Equal(t, "pay-42", res.Raw["paymentId"])

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, debitTransferPath, reqs[0].Path)
	assert.Equal(t, MediaType, reqs[0].ContentType)
	assert.Equal(t, map[string]any{
		"amount":       "10.01",
		"fromAccount":  "86011117947",
		"toAccount":    "42012345679",
		"currencyCode": "NOK",
	}, reqs[0].Body)
}

func TestTransferMoneyOptionalFields(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := client.TransferMoney(context.Background(), models.TransferRequest{
		FromAccount: "86011117947",
		ToAccount:   "42012345679",
		Amount:      decimal.NewFromInt(5),
		Message:     "Ukelønn",
		DueDate:     "2025-01-31",
	})
	require.NoError(t, err)

	body := requests()[0].Body
	assert.Equal(t, "5.00", body["amount"])
	assert.Equal(t, "NOK", body["currencyCode"])
	assert.Equal(t, "Ukelønn", body["message"])
	assert.Equal(t, "2025-01-31", body["dueDate"])
}

func TestTransferMoneyCreditCard(t *testing.T) {
	client, requests := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"paymentId": 991}`))
	})

	res, err := client.TransferMoneyCreditCard(context.Background(), models.TransferRequest{
		FromAccount:         "86011117947",
		CreditCardAccountID: "cc-1",
		Amount:              decimal.RequireFromString("250"),
	})
	require.NoError(t, err)
	assert.Equal(t, "991", res.PaymentID)

	reqs := requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, creditTransferPath, reqs[0].Path)
	assert.Equal(t, map[string]any{
		"amount":              "250.00",
		"fromAccount":         "86011117947",
		"creditCardAccountId": "cc-1",
	}, reqs[0].Body)
}

func TestErrorResponses(t *testing.T) {
	testCases := []struct {
		name    string
		status  int
		headers map[string]string
		body    string
		check   func(t *testing.T, err error)
	}{
		{
			name:   "Structured errors",
			status: http.StatusBadRequest,
			body:   `{"errors": [{"code": "invalid_account", "message": "Unknown account", "traceId": "abc"}, {"code": "x"}]}`,
			check: func(t *testing.T, err error) {
				var upstream *models.UpstreamError
				require.ErrorAs(t, err, &upstream)
				assert.Equal(t, 400, upstream.Status)
				assert.Contains(t, upstream.Error(), "POST ")
				assert.Contains(t, upstream.Error(), "failed – HTTP 400: invalid_account: Unknown account; x: No message provided")
				assert.Equal(t, []string{"invalid_account", "x"}, upstream.ErrorCodes())
				assert.Equal(t, []string{"abc"}, upstream.TraceIDs())
			},
		},
		{
			name:   "Plain text body",
			status: http.StatusBadGateway,
			body:   "upstream unavailable",
			check: func(t *testing.T, err error) {
				var upstream *models.UpstreamError
				require.ErrorAs(t, err, &upstream)
				assert.Equal(t, 502, upstream.Status)
				assert.Contains(t, upstream.Error(), "HTTP 502: upstream unavailable")
				assert.Empty(t, upstream.Errors)
			},
		},
		{
			name:   "Unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"errors": [{"code": "unauthorized", "message": "token expired"}]}`,
			check: func(t *testing.T, err error) {
				var upstream *models.UpstreamError
				require.ErrorAs(t, err, &upstream)
				assert.True(t, upstream.IsAuthFailure())
			},
		},
		{
			name:    "Rate limited with Retry-After",
			status:  http.StatusTooManyRequests,
			headers: map[string]string{"Retry-After": "120"},
			body:    `{"errors": [{"code": "rate_limited", "message": "slow down"}]}`,
			check: func(t *testing.T, err error) {
				var rl *models.RateLimitError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, 120*time.Second, rl.RetryAfter)
				assert.Equal(t, 429, rl.Status)
				assert.Contains(t, rl.Error(), "Rate limit exceeded. Retry after 120 seconds: ")
				assert.Equal(t, []string{"rate_limited"}, rl.ErrorCodes())

				// a rate limit error is also an upstream error
				var upstream *models.UpstreamError
				assert.ErrorAs(t, err, &upstream)
			},
		},
		{
			name:   "Rate limited without Retry-After",
			status: http.StatusTooManyRequests,
			body:   "too many",
			check: func(t *testing.T, err error) {
				var rl *models.RateLimitError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, time.Hour, rl.RetryAfter)
				assert.Equal(t, "Rate limit exceeded. Retry after 3600 seconds: too many", rl.Error())
			},
		},
		{
			name:    "Rate limited with unparseable Retry-After",
			status:  http.StatusTooManyRequests,
			headers: map[string]string{"Retry-After": "Wed, 21 Oct 2015 07:28:00 GMT"},
			check: func(t *testing.T, err error) {
				var rl *models.RateLimitError
				require.ErrorAs(t, err, &rl)
				assert.Equal(t, time.Hour, rl.RetryAfter)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			_, err := client.TransferMoney(context.Background(), models.TransferRequest{
				FromAccount: "86011117947",
				ToAccount:   "42012345679",
				Amount:      decimal.NewFromInt(1),
			})
			require.Error(t, err)
			assert.True(t, models.IsAPIError(err))
			tc.check(t, err)
		})
	}
}

func TestTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := srv.URL
	srv.Close()

	client := NewClient(StaticToken("t"), WithBaseURL(baseURL))
	_, err := client.GetAccounts(context.Background())
	require.Error(t, err)

	var transport *models.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, http.MethodGet, transport.Method)
	assert.Contains(t, transport.Error(), "network error")
	assert.True(t, models.IsAPIError(err))
}
