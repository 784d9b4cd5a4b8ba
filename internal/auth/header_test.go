// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestAuthHeaderMaker(t *testing.T) {
	header, err := AuthHeaderMaker(SchemeBasic, "abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header != "Basic abc" {
		t.Errorf("expected %q, got %q", "Basic abc", header)
	}

	header, err = AuthHeaderMaker(SchemeBearer, "xyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if header != "Bearer xyz" {
		t.Errorf("expected %q, got %q", "Bearer xyz", header)
	}
}

func TestAuthHeaderMakerUnknownScheme(t *testing.T) {
	_, err := AuthHeaderMaker(AuthScheme("digest"), "abc")
	if err == nil {
		t.Fatal("expected error for unknown scheme")
	}
	var schemeErr *UnknownSchemeError
	if !errors.As(err, &schemeErr) {
		t.Fatalf("expected UnknownSchemeError, got %T", err)
	}
	if schemeErr.Scheme != "digest" {
		t.Errorf("expected scheme digest, got %s", schemeErr.Scheme)
	}
}

func TestAuthHeaderForVariants(t *testing.T) {
	oauth := NewOAuthInfo("acc", "ref", 0, 0, 0, EmptyUserInfo)
	if got := AuthHeader(oauth); got != "Bearer acc" {
		t.Errorf("oauth header = %q", got)
	}

	basic := NewBasicAuthInfo("jane", "secret", EmptyUserInfo)
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("jane:secret"))
	if got := AuthHeader(basic); got != want {
		t.Errorf("basic header = %q, want %q", got, want)
	}

	pat := NewPATAuthInfo("tok", EmptyUserInfo)
	if got := AuthHeader(pat); got != "Bearer tok" {
		t.Errorf("pat header = %q", got)
	}

	hardcoded := NewHardcodedAuthInfo("tok", SchemeBasic, EmptyUserInfo)
	if got := AuthHeader(hardcoded); got != "Basic tok" {
		t.Errorf("hardcoded header = %q", got)
	}

	if got := AuthHeader(EmptyAuthInfo); got != "" {
		t.Errorf("none header should be empty, got %q", got)
	}
}

func TestGetSecretForAuthInfo(t *testing.T) {
	cases := []struct {
		name string
		info AuthInfo
		want string
	}{
		{"oauth", NewOAuthInfo("acc", "ref", 0, 0, 0, EmptyUserInfo), "accref"},
		{"basic", NewBasicAuthInfo("u", "pw", EmptyUserInfo), "pw"},
		{"pat", NewPATAuthInfo("tok", EmptyUserInfo), "tok"},
		{"hardcoded", NewHardcodedAuthInfo("tok", SchemeBearer, EmptyUserInfo), "tok"},
		{"none", EmptyAuthInfo, ""},
	}
	for _, tc := range cases {
		got := GetSecretForAuthInfo(tc.info)
		if got != tc.want {
			t.Errorf("%s: secret = %q, want %q", tc.name, got, tc.want)
		}
		if tc.info.Type != TypeNone && got == "" {
			t.Errorf("%s: secret must be non-empty", tc.name)
		}
	}
}

func TestOAuthProviderForSite(t *testing.T) {
	cases := []struct {
		host string
		want OAuthProvider
		ok   bool
	}{
		{"foo.atlassian.net", JiraCloud, true},
		{"foo.atlassian.net:443", JiraCloud, true},
		{"something.jira.com", JiraCloud, true},
		{"staging.jira-dev.com", JiraCloudStaging, true},
		{"bitbucket.org", BitbucketCloud, true},
		{"staging.bb-inf.net", BitbucketCloudStaging, true},
		{"unknown.example.com", "", false},
	}
	for _, tc := range cases {
		got, ok := OAuthProviderForSite(SiteInfo{Host: tc.host})
		if ok != tc.ok || got != tc.want {
			t.Errorf("OAuthProviderForSite(%s) = (%s, %v), want (%s, %v)", tc.host, got, ok, tc.want, tc.ok)
		}
	}
}

func TestIsBlockedRequest(t *testing.T) {
	err := &BlockedRequestError{Host: "bitbucket.org"}
	if !IsBlockedRequest(err) {
		t.Error("expected IsBlockedRequest to be true")
	}
	if !strings.Contains(err.Error(), "bitbucket.org") {
		t.Errorf("error should name the host: %v", err)
	}
	if IsBlockedRequest(errors.New("other")) {
		t.Error("unrelated error must not be blocked")
	}
}
