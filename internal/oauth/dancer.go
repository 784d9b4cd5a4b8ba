// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
	"golang.org/x/oauth2"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/config"
	"github.com/atlasbridge/atlasbridge/internal/credstore"
	"github.com/atlasbridge/atlasbridge/internal/misc"
)

// DanceState is the observable phase of an in-flight dance.
type DanceState string

const (
	StateIdle                      DanceState = "idle"
	StateAwaitingUserAuthorization DanceState = "awaiting-user-authorization"
	StateExchangingCode            DanceState = "exchanging-code"
	StateComplete                  DanceState = "complete"
	StateFailed                    DanceState = "failed"
)

// callbackResult is what the loopback listener captures from the provider
// redirect.
type callbackResult struct {
	code  string
	state string
	err   string
}

// Dancer drives the interactive OAuth authorization-code exchange. One
// instance exists per process since it owns the loopback listener for the
// browser callback; the composition root creates it at startup and closes it
// at shutdown.
type Dancer struct {
	cfg        *config.Config
	httpClient *http.Client
	timeout    time.Duration

	// openBrowser is swapped out in tests.
	openBrowser func(url string) error

	mu       sync.Mutex
	state    DanceState
	dancing  bool
	listener *http.Server
	closed   bool

	remoteMu      sync.Mutex
	pendingRemote map[string]time.Time
}

// NewDancer creates the process-wide dance engine.
func NewDancer(cfg *config.Config) *Dancer {
	return &Dancer{
		cfg:           cfg,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		timeout:       time.Duration(cfg.DanceTimeoutSeconds) * time.Second,
		openBrowser:   open.Run,
		state:         StateIdle,
		pendingRemote: make(map[string]time.Time),
	}
}

// State returns the current dance phase.
func (d *Dancer) State() DanceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dancer) setState(s DanceState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// Close tears down any live callback listener and fails pending dances.
func (d *Dancer) Close() {
	d.mu.Lock()
	srv := d.listener
	d.listener = nil
	d.closed = true
	d.mu.Unlock()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}

// DoDance runs the full interactive flow: open the provider's authorization
// URL in the system browser, wait for the redirect carrying the
// authorization code on a loopback listener, exchange the code for tokens
// and resolve user identity plus accessible resources. finalRedirectURL, if
// non-empty, is where the browser is sent after the code is captured
// (typically an editor deep link); otherwise a small confirmation page is
// served.
func (d *Dancer) DoDance(ctx context.Context, provider auth.OAuthProvider, site auth.SiteInfo, finalRedirectURL string) (*auth.OAuthResponse, error) {
	strategy, err := StrategyForProvider(provider, d.cfg.Providers)
	if err != nil {
		return nil, err
	}

	state, err := misc.GenerateRandomState()
	if err != nil {
		return nil, err
	}

	conf := strategy.OAuth2Config(strategy.RedirectURL())
	opts := strategy.AuthCodeOptions()
	verifier := ""
	if strategy.UsePKCE {
		verifier = oauth2.GenerateVerifier()
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	authURL := conf.AuthCodeURL(state, opts...)

	results := make(chan callbackResult, 1)
	srv, err := d.startCallbackListener(strategy, finalRedirectURL, results)
	if err != nil {
		return nil, err
	}
	defer d.stopCallbackListener(srv)

	d.setState(StateAwaitingUserAuthorization)
	log.WithField("provider", string(provider)).Info("starting OAuth dance")

	if err := d.openBrowser(authURL); err != nil {
		d.setState(StateFailed)
		return nil, fmt.Errorf("failed to open browser for authorization: %w", err)
	}

	var result callbackResult
	select {
	case result = <-results:
	case <-time.After(d.timeout):
		d.setState(StateFailed)
		return nil, auth.ErrTimeout
	case <-ctx.Done():
		d.setState(StateFailed)
		return nil, ctx.Err()
	}

	if result.err != "" {
		d.setState(StateFailed)
		return nil, fmt.Errorf("atlasbridge oauth: provider returned error %q", result.err)
	}
	if result.state != state {
		d.setState(StateFailed)
		return nil, errors.New("atlasbridge oauth: state mismatch in callback")
	}

	resp, err := d.exchangeAndResolve(ctx, strategy, conf, result.code, verifier)
	if err != nil {
		d.setState(StateFailed)
		return nil, err
	}
	d.setState(StateComplete)
	return resp, nil
}

// exchangeAndResolve trades an authorization code for tokens and aggregates
// the identity lookups into an OAuthResponse.
func (d *Dancer) exchangeAndResolve(ctx context.Context, strategy *Strategy, conf *oauth2.Config, code, verifier string) (*auth.OAuthResponse, error) {
	d.setState(StateExchangingCode)

	var exchangeOpts []oauth2.AuthCodeOption
	if verifier != "" {
		exchangeOpts = append(exchangeOpts, oauth2.VerifierOption(verifier))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.httpClient)
	token, err := conf.Exchange(ctx, code, exchangeOpts...)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}

	user, resources, err := d.resolveIdentity(ctx, strategy, token.AccessToken)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	resp := &auth.OAuthResponse{
		Access:              token.AccessToken,
		Refresh:             token.RefreshToken,
		ReceivedAt:          now.UnixMilli(),
		User:                user,
		AccessibleResources: resources,
	}
	if !token.Expiry.IsZero() {
		resp.ExpirationDate = token.Expiry.UnixMilli()
		resp.Iat = now.UnixMilli()
	}
	return resp, nil
}

// RefreshAccessToken exchanges a stored refresh token for a new access and
// refresh pair. A provider rejection (revoked or expired refresh token)
// surfaces as RefreshRejectedError and is never retried here.
func (d *Dancer) RefreshAccessToken(ctx context.Context, provider auth.OAuthProvider, refreshToken string) (*credstore.RefreshedTokens, error) {
	strategy, err := StrategyForProvider(provider, d.cfg.Providers)
	if err != nil {
		return nil, err
	}

	conf := strategy.OAuth2Config(strategy.RedirectURL())
	ctx = context.WithValue(ctx, oauth2.HTTPClient, d.httpClient)

	source := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, &auth.RefreshRejectedError{Provider: provider, Cause: err}
		}
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	now := time.Now()
	tokens := &credstore.RefreshedTokens{
		Access:     token.AccessToken,
		Refresh:    token.RefreshToken,
		ReceivedAt: now.UnixMilli(),
	}
	if !token.Expiry.IsZero() {
		tokens.ExpirationDate = token.Expiry.UnixMilli()
		tokens.Iat = now.UnixMilli()
	}
	return tokens, nil
}

func (d *Dancer) startCallbackListener(strategy *Strategy, finalRedirectURL string, results chan<- callbackResult) (*http.Server, error) {
	// The reservation happens under the same lock as the guard, so two
	// concurrent dances cannot both pass it.
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, errors.New("atlasbridge oauth: dancer is closed")
	}
	if d.dancing {
		d.mu.Unlock()
		return nil, errors.New("atlasbridge oauth: another dance is already in progress")
	}
	d.dancing = true
	d.mu.Unlock()

	addr := fmt.Sprintf("127.0.0.1:%d", strategy.CallbackPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		d.mu.Lock()
		d.dancing = false
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(strategy.CallbackPath, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		result := callbackResult{
			code:  query.Get("code"),
			state: query.Get("state"),
			err:   query.Get("error"),
		}

		w.Header().Set("Cache-Control", "no-store")
		if finalRedirectURL != "" {
			http.Redirect(w, r, finalRedirectURL, http.StatusFound)
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, "<html><body><p>Authentication complete. You can close this window.</p></body></html>")
		}

		select {
		case results <- result:
		default:
		}
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      5 * time.Second,
	}

	d.mu.Lock()
	if d.closed {
		d.dancing = false
		d.mu.Unlock()
		ln.Close()
		return nil, errors.New("atlasbridge oauth: dancer is closed")
	}
	d.listener = srv
	d.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("OAuth callback listener stopped unexpectedly")
		}
	}()

	log.Infof("OAuth callback listener on %s", addr)
	return srv, nil
}

func (d *Dancer) stopCallbackListener(srv *http.Server) {
	d.mu.Lock()
	if d.listener == srv {
		d.listener = nil
	}
	d.dancing = false
	d.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
