package signoff

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/ttab/elephant-signoff/store"
)

// SummarizeChanges counts the records on the source collection that
// changed since the compare collection's checkpoint. Read-only and
// idempotent, so it is safe to call on every refresh.
//
// The checkpoint is the compare collection's records entity tag, which
// only moves when record bodies change. Stores that don't expose one fall
// back to the collection's own last_modified.
func SummarizeChanges(
	ctx context.Context, client store.Client,
	source, compare store.Location,
) (*ChangesSummary, error) {
	token, err := client.RecordsCheckpoint(ctx, compare)
	if err != nil {
		return nil, fmt.Errorf(
			"get records checkpoint for %s: %w", compare, err)
	}

	if token == "" {
		attrs, err := client.Attributes(ctx, compare)
		if err != nil {
			return nil, fmt.Errorf(
				"get attributes for %s: %w", compare, err)
		}

		token = strconv.FormatInt(attrs.LastModified, 10)
	}

	since, err := ParseCheckpoint(token)
	if err != nil {
		return nil, fmt.Errorf(
			"parse checkpoint for %s: %w", compare, err)
	}

	// We only need to know whether each entry is a tombstone, so don't
	// ask for anything beyond that.
	records, err := client.RecordsSince(ctx, source, since,
		[]string{"deleted"})
	if err != nil {
		return nil, fmt.Errorf(
			"list records changed on %s: %w", source, err)
	}

	summary := ChangesSummary{
		Since: since,
	}

	for _, r := range records {
		if r.Deleted() {
			summary.Deleted++
		} else {
			summary.Updated++
		}
	}

	return &summary, nil
}

// ParseCheckpoint normalises a checkpoint token into the numeric
// timestamp it quotes. Entity tags arrive as quoted integers, optionally
// with a weak validator prefix.
func ParseCheckpoint(token string) (int64, error) {
	normalised := strings.TrimPrefix(token, "W/")
	normalised = strings.Trim(normalised, `"`)

	since, err := strconv.ParseInt(normalised, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid checkpoint token %q: %w",
			token, err)
	}

	return since, nil
}
