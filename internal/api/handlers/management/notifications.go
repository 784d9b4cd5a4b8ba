// Copyright 2026 The atlasbridge Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package management

import (
	"sync"
	"time"
)

// notificationCap bounds the buffer; the oldest entries fall off first.
const notificationCap = 100

// Notification is one message queued for the next poll of the
// notifications endpoint.
type Notification struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationBuffer collects outcomes of background work until a client
// drains them.
type NotificationBuffer struct {
	mu      sync.Mutex
	entries []Notification
}

func NewNotificationBuffer() *NotificationBuffer {
	return &NotificationBuffer{}
}

func (b *NotificationBuffer) Info(message string) {
	b.push(Notification{Level: "info", Message: message, Timestamp: time.Now()})
}

func (b *NotificationBuffer) Error(message string, err error) {
	n := Notification{Level: "error", Message: message, Timestamp: time.Now()}
	if err != nil {
		n.Detail = err.Error()
	}
	b.push(n)
}

// Drain returns all queued notifications and empties the buffer.
func (b *NotificationBuffer) Drain() []Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.entries
	b.entries = nil
	if out == nil {
		out = []Notification{}
	}
	return out
}

func (b *NotificationBuffer) push(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, n)
	if len(b.entries) > notificationCap {
		b.entries = b.entries[len(b.entries)-notificationCap:]
	}
}
