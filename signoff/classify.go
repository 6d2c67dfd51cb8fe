package signoff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/cubicdaiya/gonp"
	"github.com/ttab/elephant-signoff/linediff"
	"github.com/ttab/elephant-signoff/store"
)

// ChangeType classifies how a record differs between two record sets.
type ChangeType string

const (
	ChangeAdd    ChangeType = "add"
	ChangeRemove ChangeType = "remove"
	ChangeUpdate ChangeType = "update"
	// ChangeEmptyUpdate flags records that only differ in the omitted
	// bookkeeping fields, so that the change can be rendered without
	// loud highlighting.
	ChangeEmptyUpdate ChangeType = "empty_update"
)

// RecordChange describes one changed record. Source is nil for additions
// and Target is nil for removals; both carry the records as they appeared
// in the input, without any field omission applied.
type RecordChange struct {
	ID     string
	Type   ChangeType
	Source store.Record
	Target store.Record
}

// VolatileFields are the record revision fields that change on every
// write. Pass them as the omit set to ClassifyChanges to suppress
// bookkeeping-only updates.
var VolatileFields = []string{"last_modified", "schema"}

// ClassifyChanges compares two record sets and reports every added,
// removed or updated record, sorted by id. Records present in both sets
// that differ, but are equal once the omit fields are stripped, are
// reported as empty updates. Unchanged records are not reported.
//
// The classifier is stateless and deterministic; calling it twice with
// the same inputs yields identical output. Records without an id, or a
// set containing the same id twice, are a programmer error and cause a
// panic.
func ClassifyChanges(
	oldItems, newItems []store.Record, omit []string,
) []RecordChange {
	oldByID := recordsByID(oldItems)
	newByID := recordsByID(newItems)

	d := gonp.New(sortedIDs(oldByID), sortedIDs(newByID))
	d.Compose()

	var changes []RecordChange

	for _, el := range d.Ses() {
		id := el.GetElem()

		switch el.GetType() {
		case gonp.SesAdd:
			changes = append(changes, RecordChange{
				ID:     id,
				Type:   ChangeAdd,
				Target: newByID[id],
			})
		case gonp.SesDelete:
			changes = append(changes, RecordChange{
				ID:     id,
				Type:   ChangeRemove,
				Source: oldByID[id],
			})
		case gonp.SesCommon:
			change, changed := classifyUpdate(
				oldByID[id], newByID[id], omit)
			if changed {
				changes = append(changes, change)
			}
		}
	}

	slices.SortFunc(changes, func(a, b RecordChange) int {
		return strings.Compare(a.ID, b.ID)
	})

	return changes
}

func classifyUpdate(
	oldRec, newRec store.Record, omit []string,
) (RecordChange, bool) {
	if linediff.Equal(oldRec, newRec) {
		return RecordChange{}, false
	}

	changeType := ChangeUpdate

	if len(omit) > 0 &&
		linediff.Equal(oldRec.Omit(omit...), newRec.Omit(omit...)) {
		changeType = ChangeEmptyUpdate
	}

	return RecordChange{
		ID:     oldRec.ID(),
		Type:   changeType,
		Source: oldRec,
		Target: newRec,
	}, true
}

func recordsByID(records []store.Record) map[string]store.Record {
	byID := make(map[string]store.Record, len(records))

	for _, r := range records {
		id := r.ID()
		if id == "" {
			panic(fmt.Sprintf("record without an id: %v", r))
		}

		if _, dup := byID[id]; dup {
			panic(fmt.Sprintf("duplicate record id: %q", id))
		}

		byID[id] = r
	}

	return byID
}

func sortedIDs(byID map[string]store.Record) []string {
	ids := make([]string, 0, len(byID))

	for id := range byID {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}
