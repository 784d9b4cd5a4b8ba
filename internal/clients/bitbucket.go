// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/tidwall/gjson"

	"github.com/atlasbridge/atlasbridge/internal/auth"
)

// usernameSlugPattern matches characters Bitbucket Server strips from the
// x-ausername header value before it becomes a user slug.
var usernameSlugPattern = regexp.MustCompile(`[\[\]:/?#@!$&'()*+,;=%\\]`)

// BitbucketClient probes Bitbucket REST endpoints during login.
type BitbucketClient struct {
	httpClient *http.Client
}

func NewBitbucketClient() *BitbucketClient {
	return &BitbucketClient{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// CloudUser resolves the authenticated cloud user. apiBaseURL is the 2.0
// REST base, e.g. https://api.bitbucket.org/2.0. The primary email requires
// a second call and is best effort.
func (c *BitbucketClient) CloudUser(ctx context.Context, apiBaseURL, authHeader string) (auth.UserInfo, error) {
	body, err := getJSON(ctx, c.httpClient, apiBaseURL+"/user", authHeader)
	if err != nil {
		return auth.UserInfo{}, fmt.Errorf("failed to fetch bitbucket user: %w", err)
	}

	profile := gjson.ParseBytes(body)
	user := auth.UserInfo{
		ID:          profile.Get("account_id").String(),
		DisplayName: profile.Get("display_name").String(),
		AvatarURL:   profile.Get("links.avatar.href").String(),
	}
	if user.ID == "" {
		user.ID = profile.Get("uuid").String()
	}
	if user.ID == "" {
		return auth.UserInfo{}, fmt.Errorf("bitbucket user response carries no identifier")
	}

	if emailBody, err := getJSON(ctx, c.httpClient, apiBaseURL+"/user/emails", authHeader); err == nil {
		gjson.GetBytes(emailBody, "values").ForEach(func(_, entry gjson.Result) bool {
			if entry.Get("is_primary").Bool() {
				user.Email = entry.Get("email").String()
				return false
			}
			return true
		})
	}
	return user, nil
}

// ServerUsername confirms the credentials against a Bitbucket Server
// instance and returns the authenticated user's slug. The server echoes the
// username in the x-ausername response header of any authenticated request;
// the capabilities resource is the cheapest one to hit. The header value is
// percent encoded and may contain characters the user directory strips.
func (c *BitbucketClient) ServerUsername(ctx context.Context, baseURL, authHeader string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/rest/api/latest/build/capabilities", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", authHeader)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("GET %s/rest/api/latest/build/capabilities returned status %d", baseURL, resp.StatusCode)
	}

	raw := resp.Header.Get("x-ausername")
	if raw == "" {
		return "", fmt.Errorf("bitbucket server did not identify the user")
	}
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		decoded = raw
	}
	return usernameSlugPattern.ReplaceAllString(decoded, "_"), nil
}

// ServerUser fetches a Bitbucket Server user's profile by slug.
func (c *BitbucketClient) ServerUser(ctx context.Context, baseURL, authHeader, slug string) (auth.UserInfo, error) {
	body, err := getJSON(ctx, c.httpClient, baseURL+"/rest/api/1.0/users/"+url.PathEscape(slug), authHeader)
	if err != nil {
		return auth.UserInfo{}, fmt.Errorf("failed to fetch bitbucket server user: %w", err)
	}

	profile := gjson.ParseBytes(body)
	user := auth.UserInfo{
		ID:          profile.Get("slug").String(),
		DisplayName: profile.Get("displayName").String(),
		Email:       profile.Get("emailAddress").String(),
		AvatarURL:   profile.Get("avatarUrl").String(),
	}
	if user.ID == "" {
		user.ID = slug
	}
	if user.DisplayName == "" {
		user.DisplayName = user.ID
	}
	return user, nil
}
