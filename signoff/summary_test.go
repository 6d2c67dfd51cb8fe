package signoff_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ttab/elephant-signoff/signoff"
	"github.com/ttab/elephant-signoff/store"
	"github.com/ttab/elephantine/test"
)

func TestSummarizeChanges(t *testing.T) {
	ctx := context.Background()

	source := store.Location{Bucket: "stage", Collection: "certs"}
	compare := store.Location{Bucket: "prod", Collection: "certs"}

	f := &fakeStore{
		checkpoints: map[string]string{
			"prod/certs": `"1234"`,
		},
		changed: map[string][]store.Record{
			"stage/certs": {
				{"id": "r1", "last_modified": float64(1300)},
				{"id": "r2", "deleted": true},
				{"id": "r3", "last_modified": float64(1302)},
			},
		},
	}

	got, err := signoff.SummarizeChanges(ctx, f, source, compare)
	test.Must(t, err, "summarise changes")

	want := &signoff.ChangesSummary{
		Since:   1234,
		Updated: 2,
		Deleted: 1,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}

	if f.sinceSeen["stage/certs"] != 1234 {
		t.Errorf("expected the source listing to start at 1234, got %d",
			f.sinceSeen["stage/certs"])
	}
}

func TestSummarizeChangesLastModifiedFallback(t *testing.T) {
	ctx := context.Background()

	source := store.Location{Bucket: "stage", Collection: "certs"}
	compare := store.Location{Bucket: "prod", Collection: "certs"}

	// No checkpoint for the compare collection, so the summary falls back
	// to its attribute timestamp.
	f := &fakeStore{
		attributes: map[string]*store.Attributes{
			"prod/certs": {
				ID:           "certs",
				LastModified: 500,
			},
		},
	}

	got, err := signoff.SummarizeChanges(ctx, f, source, compare)
	test.Must(t, err, "summarise changes")

	if got.Since != 500 {
		t.Errorf("expected the fallback timestamp 500, got %d", got.Since)
	}

	if got.Updated != 0 || got.Deleted != 0 {
		t.Errorf("expected an empty summary, got %+v", got)
	}
}

func TestParseCheckpoint(t *testing.T) {
	cases := map[string]struct {
		Token   string
		Want    int64
		Invalid bool
	}{
		"quoted":    {Token: `"500"`, Want: 500},
		"weak etag": {Token: `W/"42"`, Want: 42},
		"bare":      {Token: "1234", Want: 1234},
		"empty":     {Token: "", Invalid: true},
		"garbage":   {Token: `"abc"`, Invalid: true},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := signoff.ParseCheckpoint(tc.Token)

			if tc.Invalid {
				if err == nil {
					t.Fatalf("expected %q to be rejected",
						tc.Token)
				}

				return
			}

			test.Must(t, err, "parse checkpoint")

			if got != tc.Want {
				t.Errorf("got %d, want %d", got, tc.Want)
			}
		})
	}
}
