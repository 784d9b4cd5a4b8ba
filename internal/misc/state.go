// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package misc holds small helpers with no better home.
package misc

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateRandomState produces an opaque URL-safe token used to correlate an
// OAuth authorization request with its callback.
func GenerateRandomState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
