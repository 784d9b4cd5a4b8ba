// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned when the OAuth dance callback never arrives within
// the allotted window.
var ErrTimeout = errors.New("atlasbridge auth: timed out waiting for OAuth callback")

// UnsupportedProviderError indicates a site host that maps to no known OAuth
// provider.
type UnsupportedProviderError struct {
	Host string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("atlasbridge auth: no OAuth provider found for %s", e.Host)
}

// UnknownSchemeError indicates an invalid auth-header scheme request.
type UnknownSchemeError struct {
	Scheme AuthScheme
}

func (e *UnknownSchemeError) Error() string {
	return fmt.Sprintf("atlasbridge auth: unknown auth header scheme %q", string(e.Scheme))
}

// RefreshRejectedError indicates the provider explicitly rejected a refresh
// token. The credential is permanently dead until the user logs in again;
// this is not a transient fault and must not be retried silently.
type RefreshRejectedError struct {
	Provider OAuthProvider
	Cause    error
}

func (e *RefreshRejectedError) Error() string {
	return fmt.Sprintf("atlasbridge auth: provider %s rejected refresh token: %v", e.Provider, e.Cause)
}

func (e *RefreshRejectedError) Unwrap() error { return e.Cause }

// CredentialReadError indicates a hardcoded-token file that is missing,
// unreadable, or whose contents did not match the configured format.
type CredentialReadError struct {
	Path  string
	Cause error
}

func (e *CredentialReadError) Error() string {
	return fmt.Sprintf("atlasbridge auth: cannot read credential from %s: %v", e.Path, e.Cause)
}

func (e *CredentialReadError) Unwrap() error { return e.Cause }

// BlockedRequestError is returned by the auth interceptor when it
// short-circuits a request because the site's credential is already known to
// be invalid. It is distinguishable from network and HTTP errors so callers
// can special-case "already known to need re-auth".
type BlockedRequestError struct {
	Host string
}

func (e *BlockedRequestError) Error() string {
	return fmt.Sprintf("atlasbridge auth: request to %s blocked, credentials invalid until re-authentication", e.Host)
}

// IsBlockedRequest reports whether err (or anything it wraps) is a
// BlockedRequestError.
func IsBlockedRequest(err error) bool {
	var blocked *BlockedRequestError
	return errors.As(err, &blocked)
}
