package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ttab/elephant-signoff/store"
	"github.com/ttab/elephantine/test"
)

func newTestClient(t *testing.T, handler http.Handler) *store.HTTPClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return store.NewHTTPClient(server.URL, store.HTTPClientOptions{})
}

func TestHTTPClientAttributes(t *testing.T) {
	ctx := context.Background()

	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/buckets/stage/collections/certs" {
				http.NotFound(w, r)

				return
			}

			_, _ = w.Write([]byte(`{"data": {
				"id": "certs",
				"last_modified": 100,
				"status": "to-review",
				"last_edit_by": "alice"
			}}`))
		}))

	got, err := client.Attributes(ctx, store.Location{
		Bucket: "stage", Collection: "certs",
	})
	test.Must(t, err, "get attributes")

	want := &store.Attributes{
		ID:           "certs",
		LastModified: 100,
		Status:       "to-review",
		LastEditBy:   "alice",
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("attributes mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPClientPatchAttributes(t *testing.T) {
	ctx := context.Background()

	var (
		gotMethod  string
		gotIfMatch string
		gotBody    map[string]any
	)

	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotMethod = r.Method
			gotIfMatch = r.Header.Get("If-Match")

			err := json.NewDecoder(r.Body).Decode(&gotBody)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)

				return
			}

			_, _ = w.Write([]byte(`{"data": {
				"id": "certs",
				"last_modified": 101,
				"status": "to-review"
			}}`))
		}))

	comment := "ready"

	got, err := client.PatchAttributes(ctx,
		store.Location{Bucket: "stage", Collection: "certs"},
		store.AttributesPatch{
			Status:            "to-review",
			LastEditorComment: &comment,
		}, 100)
	test.Must(t, err, "patch attributes")

	if gotMethod != http.MethodPatch {
		t.Errorf("expected a PATCH request, got %s", gotMethod)
	}

	if gotIfMatch != `"100"` {
		t.Errorf("expected the write to be conditional on \"100\", got %q",
			gotIfMatch)
	}

	wantBody := map[string]any{
		"data": map[string]any{
			"status":              "to-review",
			"last_editor_comment": "ready",
		},
	}

	if diff := cmp.Diff(wantBody, gotBody); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}

	if got.LastModified != 101 {
		t.Errorf("expected the new timestamp 101, got %d", got.LastModified)
	}
}

func TestHTTPClientPatchConflict(t *testing.T) {
	ctx := context.Background()

	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusPreconditionFailed)
			_, _ = w.Write([]byte(`{
				"code": 412,
				"error": "Precondition Failed",
				"message": "resource was modified meanwhile"
			}`))
		}))

	_, err := client.PatchAttributes(ctx,
		store.Location{Bucket: "stage", Collection: "certs"},
		store.AttributesPatch{Status: "to-review"}, 100)

	if !store.IsConflict(err) {
		t.Fatalf("expected a conflict error, got %v", err)
	}

	var conflict store.ConflictError

	if !errors.As(err, &conflict) {
		t.Fatalf("expected a ConflictError, got %v", err)
	}

	want := store.Location{Bucket: "stage", Collection: "certs"}

	if conflict.Location != want {
		t.Errorf("expected the conflict to name %s, got %s",
			want, conflict.Location)
	}

	if store.IsTransient(err) {
		t.Error("a conflict must not look like a transport failure")
	}
}

func TestHTTPClientRecordsCheckpoint(t *testing.T) {
	ctx := context.Background()

	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodHead {
				http.Error(w, "expected HEAD",
					http.StatusMethodNotAllowed)

				return
			}

			if r.URL.Path != "/buckets/prod/collections/certs/records" {
				http.NotFound(w, r)

				return
			}

			w.Header().Set("ETag", `"1234"`)
			w.WriteHeader(http.StatusOK)
		}))

	got, err := client.RecordsCheckpoint(ctx, store.Location{
		Bucket: "prod", Collection: "certs",
	})
	test.Must(t, err, "get records checkpoint")

	if got != `"1234"` {
		t.Errorf("expected the records entity tag, got %q", got)
	}
}

func TestHTTPClientRecordsSince(t *testing.T) {
	ctx := context.Background()

	var gotQuery map[string][]string

	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.Query()

			_, _ = w.Write([]byte(`{"data": [
				{"id": "r1", "last_modified": 1300},
				{"id": "r2", "deleted": true}
			]}`))
		}))

	got, err := client.RecordsSince(ctx,
		store.Location{Bucket: "stage", Collection: "certs"},
		1234, []string{"deleted"})
	test.Must(t, err, "list changed records")

	wantQuery := map[string][]string{
		"_since":  {"1234"},
		"_fields": {"deleted"},
	}

	if diff := cmp.Diff(wantQuery, gotQuery); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}

	if len(got) != 2 || got[0].ID() != "r1" || !got[1].Deleted() {
		t.Errorf("unexpected records: %v", got)
	}
}

func TestHTTPClientPermissionDenied(t *testing.T) {
	ctx := context.Background()

	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{
				"code": 403,
				"error": "Forbidden",
				"message": "this user cannot access this resource"
			}`))
		}))

	_, err := client.GroupMembers(ctx, "stage", "certs-reviewers")

	if !store.IsPermissionDenied(err) {
		t.Fatalf("expected a permission error, got %v", err)
	}
}

func TestHTTPClientNotFound(t *testing.T) {
	ctx := context.Background()

	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

	_, err := client.GroupMembers(ctx, "stage", "missing")

	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestHTTPClientServerCapabilities(t *testing.T) {
	ctx := context.Background()

	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)

				return
			}

			_, _ = w.Write([]byte(`{
				"project_name": "store",
				"capabilities": {
					"signer": {"resources": []}
				}
			}`))
		}))

	caps, err := client.ServerCapabilities(ctx)
	test.Must(t, err, "get server capabilities")

	if _, ok := caps["signer"]; !ok {
		t.Errorf("expected the signer capability, got %v", caps)
	}
}

func TestHTTPClientGroupMembers(t *testing.T) {
	ctx := context.Background()

	client := newTestClient(t, http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/buckets/stage/groups/certs-editors" {
				http.NotFound(w, r)

				return
			}

			_, _ = w.Write([]byte(`{"data": {
				"id": "certs-editors",
				"members": ["alice", "carol"]
			}}`))
		}))

	got, err := client.GroupMembers(ctx, "stage", "certs-editors")
	test.Must(t, err, "get group members")

	want := []string{"alice", "carol"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("members mismatch (-want +got):\n%s", diff)
	}
}
