// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package secret resolves OAuth client credentials from the environment.
package secret

import "os"

// GetEnv returns the value of the environment variable named by the key,
// or fallback if the variable is not present.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// Jira Cloud Client Credentials
func JiraCloudClientID() string {
	return GetEnv("ATLASBRIDGE_JIRA_CLIENT_ID", "bJChVgBQd0aNUPuFZ8YzYBVZz3X4QTe2")
}

func JiraCloudStagingClientID() string {
	return GetEnv("ATLASBRIDGE_JIRA_STAGING_CLIENT_ID", "pmzXmUav3Rr5XEL0Sie7Biec0WGU8BKg")
}

// Bitbucket Cloud Client Credentials
func BitbucketCloudClientID() string {
	return GetEnv("ATLASBRIDGE_BITBUCKET_CLIENT_ID", "3hasX42a7Ugka2FJja")
}

func BitbucketCloudClientSecret() string {
	return GetEnv("ATLASBRIDGE_BITBUCKET_CLIENT_SECRET", "")
}

func BitbucketCloudStagingClientID() string {
	return GetEnv("ATLASBRIDGE_BITBUCKET_STAGING_CLIENT_ID", "7jspxC7fgemuUbnWQL")
}

func BitbucketCloudStagingClientSecret() string {
	return GetEnv("ATLASBRIDGE_BITBUCKET_STAGING_CLIENT_SECRET", "")
}
