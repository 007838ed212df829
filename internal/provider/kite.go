package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	apperrors "holdings-tracker/internal/errors"
	"holdings-tracker/internal/models"
)

// Kite reads last traded prices through Zerodha Kite Connect.
type Kite struct {
	client        *kiteconnect.Client
	sessionPath   string
	accessToken   string
	authenticated bool
	mu            sync.RWMutex
}

// KiteConfig holds configuration for the Kite source.
type KiteConfig struct {
	APIKey      string
	AccessToken string
	SessionPath string
	Timeout     time.Duration
	BaseURI     string
}

// NewKite creates a Kite Connect price source. An explicit access token wins
// over a persisted session.
func NewKite(cfg KiteConfig) *Kite {
	client := kiteconnect.New(cfg.APIKey)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.SetHTTPClient(&http.Client{Timeout: timeout})
	if cfg.BaseURI != "" {
		client.SetBaseURI(cfg.BaseURI)
	}

	k := &Kite{
		client:      client,
		sessionPath: cfg.SessionPath,
	}

	if cfg.AccessToken != "" {
		k.setToken(cfg.AccessToken)
	} else {
		_ = k.loadSession()
	}

	return k
}

// kiteSession is the persisted session written by the Kite login flow.
type kiteSession struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Name returns the source name.
func (k *Kite) Name() string { return "kite" }

// IsAuthenticated reports whether an access token is available.
func (k *Kite) IsAuthenticated() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.authenticated
}

func (k *Kite) setToken(token string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.accessToken = token
	k.authenticated = true
	k.client.SetAccessToken(token)
}

func (k *Kite) loadSession() error {
	if k.sessionPath == "" {
		return fmt.Errorf("no session path")
	}
	data, err := os.ReadFile(k.sessionPath)
	if err != nil {
		return err
	}

	var session kiteSession
	if err := json.Unmarshal(data, &session); err != nil {
		return err
	}

	// Kite tokens expire at 6 AM IST the next day
	if time.Now().After(session.ExpiresAt) {
		return fmt.Errorf("session expired")
	}

	k.setToken(session.AccessToken)
	return nil
}

// Price fetches the quote for EXCHANGE:SYMBOL. The last price falls back to
// the previous close when no trade has happened yet.
func (k *Kite) Price(ctx context.Context, symbol string, exchange models.Exchange) (float64, error) {
	if !k.IsAuthenticated() {
		return 0, apperrors.NewProviderError(k.Name(), 0, "no access token", apperrors.ErrNotAuthenticated)
	}

	instrument := models.BasketItem{Symbol: symbol, Exchange: exchange}.Key()

	type result struct {
		quotes kiteconnect.Quote
		err    error
	}
	done := make(chan result, 1)
	go func() {
		q, err := k.client.GetQuote(instrument)
		done <- result{quotes: q, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	if r.err != nil {
		return 0, apperrors.NewProviderError(k.Name(), 0, "get quote", fmt.Errorf("%w: %v", apperrors.ErrQuoteUnavailable, r.err))
	}

	q, ok := r.quotes[instrument]
	if !ok {
		return 0, apperrors.NewDataError("price", instrument, "quote not found", apperrors.ErrQuoteUnavailable)
	}
	if q.LastPrice > 0 {
		return q.LastPrice, nil
	}
	if q.OHLC.Close > 0 {
		return q.OHLC.Close, nil
	}
	return 0, apperrors.NewDataError("price", instrument, "no last price", apperrors.ErrQuoteUnavailable)
}
