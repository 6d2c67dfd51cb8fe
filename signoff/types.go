// Package signoff implements the collection review workflow: resolving
// which collections are configured for review, classifying what changed
// between record sets, summarising pending changes from the store, and
// executing the review state transitions through conditional writes.
package signoff

import (
	"github.com/ttab/elephant-signoff/store"
)

// Status is the review state held on the source collection.
type Status string

const (
	StatusWorkInProgress Status = "work-in-progress"
	StatusToReview       Status = "to-review"
	StatusToSign         Status = "to-sign"
	StatusToRollback     Status = "to-rollback"
	StatusSigned         Status = "signed"
)

// Membership is the result of a group membership check. Unknown means the
// group couldn't be read with the actor's permissions, and is treated as
// membership for guard purposes so that a missing read permission doesn't
// block the review UI.
type Membership int

const (
	MembershipUnknown Membership = iota
	MembershipMember
	MembershipNotMember
)

func (m Membership) String() string {
	switch m {
	case MembershipMember:
		return "member"
	case MembershipNotMember:
		return "not-member"
	}

	return "unknown"
}

// Allowed reports whether the membership passes a workflow guard.
func (m Membership) Allowed() bool {
	return m != MembershipNotMember
}

// ChangesSummary counts the records that changed on a collection since a
// checkpoint. It is derived on every refresh and never persisted.
type ChangesSummary struct {
	Since   int64
	Updated int
	Deleted int
}

// SourceInfo describes the source collection of a resolved sign-off
// resource, including the actor's standing towards it.
type SourceInfo struct {
	Location       store.Location
	Status         Status
	Attributes     store.Attributes
	EditorsGroup   string
	ReviewersGroup string
	Editor         Membership
	Reviewer       Membership
}

// TargetInfo describes the preview or destination collection of a
// resolved sign-off resource.
type TargetInfo struct {
	Location store.Location
}

// Snapshot is the aggregated workflow state exposed to callers. It is
// always rebuilt from scratch, never patched field by field, so its
// sub-fields can't drift out of sync with each other.
type Snapshot struct {
	Source           SourceInfo
	Preview          *TargetInfo
	Destination      TargetInfo
	ChangesOnSource  *ChangesSummary
	ChangesOnPreview *ChangesSummary
}

// currentStatus interprets the status attribute of a source collection. A
// collection that has never entered the review flow has no status and is
// treated as work in progress.
func currentStatus(attrs *store.Attributes) Status {
	if attrs.Status == "" {
		return StatusWorkInProgress
	}

	return Status(attrs.Status)
}
