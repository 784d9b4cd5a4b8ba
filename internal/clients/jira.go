// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package clients holds the minimal Jira and Bitbucket REST probes the
// login flows need: identity lookups and feature detection. Full API
// coverage is out of scope; consumers talk to the products through the
// authenticated transport instead.
package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/atlasbridge/atlasbridge/internal/auth"
)

// JiraClient probes Jira REST endpoints during login.
type JiraClient struct {
	httpClient *http.Client
}

func NewJiraClient() *JiraClient {
	return &JiraClient{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Myself resolves the authenticated user via the "myself" resource.
// baseAPIURL is the site's REST base, e.g. https://jira.example.com/rest/api/2.
func (c *JiraClient) Myself(ctx context.Context, baseAPIURL, authHeader string) (auth.UserInfo, error) {
	body, err := getJSON(ctx, c.httpClient, baseAPIURL+"/myself", authHeader)
	if err != nil {
		return auth.UserInfo{}, fmt.Errorf("failed to fetch jira user: %w", err)
	}

	me := gjson.ParseBytes(body)
	user := auth.UserInfo{
		ID:          me.Get("accountId").String(),
		DisplayName: me.Get("displayName").String(),
		Email:       me.Get("emailAddress").String(),
		AvatarURL:   me.Get("avatarUrls.48x48").String(),
	}
	// Server deployments have no account ids; usernames fill in.
	if user.ID == "" {
		user.ID = me.Get("name").String()
	}
	if user.ID == "" {
		user.ID = me.Get("key").String()
	}
	if user.ID == "" {
		return auth.UserInfo{}, fmt.Errorf("jira user response carries no identifier")
	}
	return user, nil
}

// HasResolutionField reports whether the site exposes the resolution system
// field. Some server instances hide it, and issue rendering needs to know.
func (c *JiraClient) HasResolutionField(ctx context.Context, baseAPIURL, authHeader string) (bool, error) {
	body, err := getJSON(ctx, c.httpClient, baseAPIURL+"/field", authHeader)
	if err != nil {
		return false, fmt.Errorf("failed to fetch jira fields: %w", err)
	}

	found := false
	gjson.ParseBytes(body).ForEach(func(_, field gjson.Result) bool {
		if field.Get("id").String() == "resolution" {
			found = true
			return false
		}
		return true
	})
	return found, nil
}

func getJSON(ctx context.Context, client *http.Client, url, authHeader string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned status %d", url, resp.StatusCode)
	}
	return body, nil
}
