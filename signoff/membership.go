package signoff

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ttab/elephant-signoff/store"
)

// GroupMembership checks whether the actor is a member of the named group
// in the given bucket.
//
// A viewer may legitimately lack the permission to list the group, and
// review shouldn't be hidden from them because of it, so a permission
// rejection (or a missing group) yields MembershipUnknown rather than an
// error. Callers decide what unknown permits; the workflow guards treat
// it as membership.
func GroupMembership(
	ctx context.Context, client store.Client,
	bucket, group, actor string,
) (Membership, error) {
	members, err := client.GroupMembers(ctx, bucket, group)

	switch {
	case store.IsPermissionDenied(err):
		return MembershipUnknown, nil
	case errors.Is(err, store.ErrNotFound):
		return MembershipUnknown, nil
	case err != nil:
		return MembershipUnknown, fmt.Errorf(
			"list members of %s/%s: %w", bucket, group, err)
	}

	if slices.Contains(members, actor) {
		return MembershipMember, nil
	}

	return MembershipNotMember, nil
}
