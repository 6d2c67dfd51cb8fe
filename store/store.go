// Package store defines the narrow client boundary towards the remote
// document store, together with the data types that cross it. The sign-off
// engine only ever talks to the store through the Client interface.
package store

import (
	"context"
	"encoding/json"
	"maps"
)

// Location identifies a collection within a bucket.
type Location struct {
	Bucket     string `json:"bucket"`
	Collection string `json:"collection,omitempty"`
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Collection
}

// Attributes is the review metadata held on a source collection. Only
// Status drives workflow decisions, the rest is bookkeeping for display.
type Attributes struct {
	ID                    string `json:"id,omitempty"`
	LastModified          int64  `json:"last_modified,omitempty"`
	Status                string `json:"status,omitempty"`
	LastEditBy            string `json:"last_edit_by,omitempty"`
	LastEditDate          string `json:"last_edit_date,omitempty"`
	LastEditorComment     string `json:"last_editor_comment,omitempty"`
	LastReviewRequestBy   string `json:"last_review_request_by,omitempty"`
	LastReviewRequestDate string `json:"last_review_request_date,omitempty"`
	LastReviewBy          string `json:"last_review_by,omitempty"`
	LastReviewDate        string `json:"last_review_date,omitempty"`
	LastReviewerComment   string `json:"last_reviewer_comment,omitempty"`
	LastSignatureBy       string `json:"last_signature_by,omitempty"`
	LastSignatureDate     string `json:"last_signature_date,omitempty"`
}

// AttributesPatch is a partial attribute update. The comment pointers
// distinguish between leaving a comment untouched (nil) and clearing it
// (pointer to empty string).
type AttributesPatch struct {
	Status              string  `json:"status"`
	LastEditorComment   *string `json:"last_editor_comment,omitempty"`
	LastReviewerComment *string `json:"last_reviewer_comment,omitempty"`
}

// Record is a schemaless record as returned by the store. Tombstones for
// deleted records carry "deleted": true.
type Record map[string]any

func (r Record) ID() string {
	id, _ := r["id"].(string)

	return id
}

func (r Record) Deleted() bool {
	deleted, _ := r["deleted"].(bool)

	return deleted
}

// Omit returns a copy of the record without the given fields.
func (r Record) Omit(fields ...string) Record {
	out := maps.Clone(r)

	for _, f := range fields {
		delete(out, f)
	}

	return out
}

// Capabilities is the capability map advertised by the server root
// endpoint, keyed by capability name.
type Capabilities map[string]json.RawMessage

// Client is the part of the document store protocol that the sign-off
// engine needs. All writes go through PatchAttributes and are guarded by
// the If-Match precondition.
type Client interface {
	// Attributes fetches the metadata of a collection.
	Attributes(ctx context.Context, loc Location) (*Attributes, error)

	// PatchAttributes applies a partial metadata update, conditional on
	// the collection's last_modified still matching ifMatch. A failed
	// precondition is returned as a ConflictError.
	PatchAttributes(
		ctx context.Context, loc Location,
		patch AttributesPatch, ifMatch int64,
	) (*Attributes, error)

	// RecordsCheckpoint returns the entity tag that tracks record-body
	// changes for a collection, or "" if the store doesn't provide one.
	RecordsCheckpoint(ctx context.Context, loc Location) (string, error)

	// RecordsSince lists records changed since the given timestamp,
	// including tombstones for deleted records. Fields limits the record
	// fields included in the response.
	RecordsSince(
		ctx context.Context, loc Location,
		since int64, fields []string,
	) ([]Record, error)

	// Records lists the current records of a collection.
	Records(ctx context.Context, loc Location) ([]Record, error)

	// ServerCapabilities fetches the server capability map.
	ServerCapabilities(ctx context.Context) (Capabilities, error)

	// GroupMembers lists the member principals of a group in a bucket.
	GroupMembers(ctx context.Context, bucket, group string) ([]string, error)
}
