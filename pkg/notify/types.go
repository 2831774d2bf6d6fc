// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

// Package notify delivers file library change events to connected clients.
//
// Producers call Sink.Notify and never wait on delivery. The Emitter queues
// events and fans them out to every configured Publisher: the websocket Hub
// for browsers, and optionally Redis Pub/Sub and Kafka for other services.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a library change.
type EventType string

const (
	EventFileUploaded EventType = "fileUploaded"
	EventFileDeleted  EventType = "fileDeleted"
)

// FileInfo describes the file an event is about. Deletions carry the name only.
type FileInfo struct {
	Name       string     `json:"name"`
	Size       int64      `json:"size,omitempty"`
	CreateTime *time.Time `json:"createTime,omitempty"`
	SHA256     string     `json:"sha256,omitempty"`
}

// Event is the wire form sent to listeners:
//
//	{"id":"...","event":"fileUploaded","data":{"name":"a.txt","size":3,"createTime":"..."}}
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"event"`
	Data FileInfo  `json:"data"`
}

// FileUploaded builds the event for a newly stored file.
func FileUploaded(name string, size int64, createTime time.Time, sha256Hex string) Event {
	ct := createTime.UTC()
	return Event{
		ID:   uuid.NewString(),
		Type: EventFileUploaded,
		Data: FileInfo{Name: name, Size: size, CreateTime: &ct, SHA256: sha256Hex},
	}
}

// FileDeleted builds the event for a removed file.
func FileDeleted(name string) Event {
	return Event{
		ID:   uuid.NewString(),
		Type: EventFileDeleted,
		Data: FileInfo{Name: name},
	}
}

// Marshal encodes the event in its wire form.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Sink receives events. Notify must not block the caller on delivery and
// never reports delivery failures.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// Publisher is a delivery backend driven by the Emitter.
type Publisher interface {
	// Name returns the publisher identifier (e.g., "websocket", "redis", "kafka").
	Name() string

	// Publish sends one encoded event.
	Publish(ctx context.Context, ev Event, data []byte) error

	// Close cleanly shuts down the publisher.
	Close() error
}

// Noop drops every event.
type Noop struct{}

func (Noop) Notify(context.Context, Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event)

func (f SinkFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }
