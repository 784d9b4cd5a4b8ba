// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package oauth

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/atlasbridge/atlasbridge/internal/auth"
	"github.com/atlasbridge/atlasbridge/internal/misc"
)

// remoteRedirectURL is where the remote dance sends the browser; the page
// displays the authorization code for the user to paste back, since no
// loopback listener is reachable in remote development environments.
const remoteRedirectURL = "https://id.atlassian.com/login/callback"

// remoteStateTTL bounds how long a phase-one remote dance stays redeemable.
const remoteStateTTL = 10 * time.Minute

// DoInitRemoteDance is phase one of the remote variant: it registers the
// intent under a fresh opaque state token and returns the authorization URL
// for the user to visit in any browser. Phase two must echo the same state.
func (d *Dancer) DoInitRemoteDance() (state, authURL string, err error) {
	strategy, err := StrategyForProvider(auth.JiraCloudRemote, d.cfg.Providers)
	if err != nil {
		return "", "", err
	}

	state, err = misc.GenerateRandomState()
	if err != nil {
		return "", "", err
	}

	conf := strategy.OAuth2Config(remoteRedirectURL)
	authURL = conf.AuthCodeURL(state, strategy.AuthCodeOptions()...)

	d.remoteMu.Lock()
	d.pendingRemote[state] = time.Now().Add(remoteStateTTL)
	d.remoteMu.Unlock()

	log.Debug("registered remote OAuth dance")
	return state, authURL, nil
}

// DoFinishRemoteDance is phase two: it redeems a manually supplied
// authorization code against a state registered by DoInitRemoteDance.
// Unknown, reused or expired state fails without contacting the provider.
func (d *Dancer) DoFinishRemoteDance(ctx context.Context, provider auth.OAuthProvider, site auth.SiteInfo, state, code string) (*auth.OAuthResponse, error) {
	d.remoteMu.Lock()
	deadline, ok := d.pendingRemote[state]
	if ok {
		delete(d.pendingRemote, state)
	}
	d.remoteMu.Unlock()

	if !ok {
		return nil, errors.New("atlasbridge oauth: unknown remote dance state")
	}
	if time.Now().After(deadline) {
		return nil, errors.New("atlasbridge oauth: remote dance state expired")
	}

	strategy, err := StrategyForProvider(provider, d.cfg.Providers)
	if err != nil {
		return nil, err
	}

	conf := strategy.OAuth2Config(remoteRedirectURL)
	resp, err := d.exchangeAndResolve(ctx, strategy, conf, code, "")
	if err != nil {
		d.setState(StateFailed)
		return nil, err
	}
	d.setState(StateComplete)
	return resp, nil
}

// pendingRemoteCount is used by tests to observe registration cleanup.
func (d *Dancer) pendingRemoteCount() int {
	d.remoteMu.Lock()
	defer d.remoteMu.Unlock()
	return len(d.pendingRemote)
}
