// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package transport provides an http.RoundTripper that injects credentials
// for one site and transparently refreshes them on auth failures.
package transport

import (
	"context"
	"io"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/auth"
)

// CredentialStore is the slice of the credential manager the round tripper
// needs.
type CredentialStore interface {
	GetAuthInfo(ctx context.Context, site auth.DetailedSiteInfo, allowCache bool) (*auth.AuthInfo, error)
	RefreshOrMarkAsInvalid(ctx context.Context, site auth.DetailedSiteInfo) (bool, error)
}

// AuthRoundTripper decorates a base transport with credential injection for
// a single site. On a 401 or 403 it refreshes the credential once, with all
// concurrent requests sharing one refresh attempt, and replays the request.
// Once a refresh settles as rejected the credential is invalid and every
// subsequent request short-circuits with BlockedRequestError until a new
// login replaces it.
type AuthRoundTripper struct {
	base  http.RoundTripper
	store CredentialStore
	site  auth.DetailedSiteInfo

	mu         sync.Mutex
	refreshing chan struct{}
	invalid    bool
}

// NewAuthRoundTripper wraps base (http.DefaultTransport when nil) for the
// given site.
func NewAuthRoundTripper(base http.RoundTripper, store CredentialStore, site auth.DetailedSiteInfo) *AuthRoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &AuthRoundTripper{base: base, store: store, site: site}
}

func (t *AuthRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	// Every attempt sends a body rebuilt through GetBody, so the original
	// body is never consumed and must be closed here.
	if req.Body != nil && req.GetBody != nil {
		defer req.Body.Close()
	}

	// A refresh already in flight will change the header we should send, so
	// hold new requests until it settles.
	if err := t.waitForRefresh(ctx); err != nil {
		return nil, err
	}
	if t.isInvalid() {
		return nil, &auth.BlockedRequestError{Host: t.site.Host}
	}

	header, err := t.currentHeader(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := t.send(req, header)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return resp, nil
	}

	// Requests whose body cannot be reconstructed are not replayable.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	ok, refreshErr := t.ensureRefreshed(ctx, header)
	if refreshErr != nil {
		log.WithError(refreshErr).WithField("host", t.site.Host).Warn("credential refresh failed")
		return resp, nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	// A rejected refresh invalidates the credential, and the request that
	// triggered it fails the same way every later one will.
	if !ok {
		return nil, &auth.BlockedRequestError{Host: t.site.Host}
	}

	header, err = t.currentHeader(ctx)
	if err != nil {
		return nil, err
	}
	return t.send(req, header)
}

// send dispatches a copy of req carrying the auth header. The original
// request is never mutated, and the body is rebuilt through GetBody so the
// request stays replayable.
func (t *AuthRoundTripper) send(req *http.Request, header string) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if req.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	if header != "" {
		clone.Header.Set("Authorization", header)
	}
	return t.base.RoundTrip(clone)
}

func (t *AuthRoundTripper) currentHeader(ctx context.Context) (string, error) {
	info, err := t.store.GetAuthInfo(ctx, t.site, true)
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return auth.AuthHeader(*info), nil
}

func (t *AuthRoundTripper) isInvalid() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invalid
}

func (t *AuthRoundTripper) waitForRefresh(ctx context.Context) error {
	t.mu.Lock()
	ch := t.refreshing
	t.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ensureRefreshed brings the stored credential forward after usedHeader was
// rejected. Exactly one caller performs the refresh; the rest wait for it to
// settle. A caller whose header is already stale compared to the store skips
// the refresh entirely, since a newer credential is in place.
func (t *AuthRoundTripper) ensureRefreshed(ctx context.Context, usedHeader string) (bool, error) {
	for {
		t.mu.Lock()
		if t.invalid {
			t.mu.Unlock()
			return false, nil
		}
		if ch := t.refreshing; ch != nil {
			t.mu.Unlock()
			select {
			case <-ch:
			case <-ctx.Done():
				return false, ctx.Err()
			}
			continue
		}
		t.mu.Unlock()

		current, err := t.currentHeader(ctx)
		if err != nil {
			return false, err
		}
		if current != usedHeader {
			return true, nil
		}

		t.mu.Lock()
		if t.refreshing != nil {
			t.mu.Unlock()
			continue
		}
		ch := make(chan struct{})
		t.refreshing = ch
		t.mu.Unlock()

		// The refresh outcome is shared by every waiter, so one caller's
		// cancellation must not abort it.
		ok, err := t.store.RefreshOrMarkAsInvalid(context.WithoutCancel(ctx), t.site)

		t.mu.Lock()
		if err == nil && !ok {
			t.invalid = true
		}
		close(ch)
		t.refreshing = nil
		t.mu.Unlock()

		return ok, err
	}
}
