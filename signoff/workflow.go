package signoff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ttab/elephant-signoff/store"
	"golang.org/x/sync/errgroup"
)

// Log attribute keys used by this package.
const (
	LogKeyBucket     = "bucket"
	LogKeyCollection = "collection"
	LogKeyStatus     = "status"
	LogKeyAction     = "action"
)

type Options struct {
	Logger *slog.Logger
	Client store.Client
	// Actor is the principal performing workflow actions, as it appears
	// in group member lists and attribute bookkeeping fields.
	Actor   string
	Metrics *Metrics
}

// Workflow executes the review transitions for collections that are
// configured for sign-off, and aggregates their state into snapshots. It
// holds no collection state of its own; the store is the single
// authority.
type Workflow struct {
	logger  *slog.Logger
	client  store.Client
	actor   string
	metrics *Metrics
}

func New(opt Options) (*Workflow, error) {
	if opt.Client == nil {
		return nil, errors.New("missing store client")
	}

	if opt.Actor == "" {
		return nil, errors.New("missing actor principal")
	}

	logger := opt.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := Workflow{
		logger:  logger,
		client:  opt.Client,
		actor:   opt.Actor,
		metrics: opt.Metrics,
	}

	return &w, nil
}

// Snapshot resolves the sign-off resource for the viewed collection and
// rebuilds the workflow snapshot. Returns nil without an error when the
// collection is not configured for review. Idempotent, safe to call on
// every navigation event.
func (w *Workflow) Snapshot(
	ctx context.Context, bid, cid string,
) (*Snapshot, error) {
	res, err := w.resolve(ctx, bid, cid)
	if err != nil {
		return nil, err
	}

	if res == nil {
		return nil, nil
	}

	return w.buildSnapshot(ctx, res)
}

// RequestReview moves the source collection from work in progress to
// review, recording the editor's comment. The actor must be an editor.
func (w *Workflow) RequestReview(
	ctx context.Context, bid, cid, comment string,
) (*Snapshot, error) {
	const action = "request review"

	return w.transition(ctx, bid, cid, action, func(
		ctx context.Context, res *Resource, attrs *store.Attributes,
	) (store.AttributesPatch, error) {
		if status := currentStatus(attrs); status != StatusWorkInProgress {
			return store.AttributesPatch{}, TransitionError{
				Action: action,
				From:   status,
			}
		}

		err := w.requireEditor(ctx, action, res)
		if err != nil {
			return store.AttributesPatch{}, err
		}

		return store.AttributesPatch{
			Status:            string(StatusToReview),
			LastEditorComment: &comment,
		}, nil
	})
}

// DeclineChanges sends the collection back to work in progress with the
// reviewer's comment. The actor must be a reviewer other than the last
// editor.
func (w *Workflow) DeclineChanges(
	ctx context.Context, bid, cid, comment string,
) (*Snapshot, error) {
	const action = "decline changes"

	return w.transition(ctx, bid, cid, action, func(
		ctx context.Context, res *Resource, attrs *store.Attributes,
	) (store.AttributesPatch, error) {
		if status := currentStatus(attrs); status != StatusToReview {
			return store.AttributesPatch{}, TransitionError{
				Action: action,
				From:   status,
			}
		}

		err := w.requireReviewer(ctx, action, res, attrs.LastEditBy)
		if err != nil {
			return store.AttributesPatch{}, err
		}

		return store.AttributesPatch{
			Status:              string(StatusWorkInProgress),
			LastReviewerComment: &comment,
		}, nil
	})
}

// ApproveChanges marks the reviewed changes as ready for signing. The
// signing itself is performed by the store-side signer; this engine only
// observes the to-sign to signed transition. The actor must be a reviewer
// other than the last editor.
func (w *Workflow) ApproveChanges(
	ctx context.Context, bid, cid string,
) (*Snapshot, error) {
	const action = "approve changes"

	return w.transition(ctx, bid, cid, action, func(
		ctx context.Context, res *Resource, attrs *store.Attributes,
	) (store.AttributesPatch, error) {
		if status := currentStatus(attrs); status != StatusToReview {
			return store.AttributesPatch{}, TransitionError{
				Action: action,
				From:   status,
			}
		}

		err := w.requireReviewer(ctx, action, res, attrs.LastEditBy)
		if err != nil {
			return store.AttributesPatch{}, err
		}

		// Approval clears any previous reviewer comment.
		empty := ""

		return store.AttributesPatch{
			Status:              string(StatusToSign),
			LastReviewerComment: &empty,
		}, nil
	})
}

// RollbackChanges asks for a signed collection to be rolled back to its
// previously published state. The actor must be an editor.
func (w *Workflow) RollbackChanges(
	ctx context.Context, bid, cid, comment string,
) (*Snapshot, error) {
	const action = "rollback changes"

	return w.transition(ctx, bid, cid, action, func(
		ctx context.Context, res *Resource, attrs *store.Attributes,
	) (store.AttributesPatch, error) {
		if status := currentStatus(attrs); status != StatusSigned {
			return store.AttributesPatch{}, TransitionError{
				Action: action,
				From:   status,
			}
		}

		err := w.requireEditor(ctx, action, res)
		if err != nil {
			return store.AttributesPatch{}, err
		}

		return store.AttributesPatch{
			Status:            string(StatusToRollback),
			LastEditorComment: &comment,
		}, nil
	})
}

type prepareFunc func(
	ctx context.Context, res *Resource, attrs *store.Attributes,
) (store.AttributesPatch, error)

// transition runs the shared action flow: resolve, fetch current state,
// guard, conditional write, full snapshot rebuild. Guards run before the
// write so that a rejected action never touches the store.
func (w *Workflow) transition(
	ctx context.Context, bid, cid, action string, prepare prepareFunc,
) (*Snapshot, error) {
	res, err := w.resolve(ctx, bid, cid)
	if err != nil {
		return nil, err
	}

	if res == nil {
		return nil, fmt.Errorf("%s/%s: %w", bid, cid, ErrNotConfigured)
	}

	attrs, err := w.client.Attributes(ctx, res.Source)
	if err != nil {
		return nil, fmt.Errorf("get source attributes: %w", err)
	}

	patch, err := prepare(ctx, res, attrs)
	if err != nil {
		w.metrics.countTransition(action, "rejected")

		return nil, err
	}

	_, err = w.client.PatchAttributes(
		ctx, res.Source, patch, attrs.LastModified)
	if err != nil {
		if store.IsConflict(err) {
			w.metrics.countConflict()
			w.metrics.countTransition(action, "conflict")
		} else {
			w.metrics.countTransition(action, "error")
		}

		return nil, fmt.Errorf("update source collection: %w", err)
	}

	w.metrics.countTransition(action, "ok")

	w.logger.InfoContext(ctx, "executed review transition",
		LogKeyAction, action,
		LogKeyBucket, res.Source.Bucket,
		LogKeyCollection, res.Source.Collection,
		LogKeyStatus, patch.Status)

	// Rebuild the snapshot from scratch rather than patching the old
	// one, so callers never observe sub-fields from different states.
	snap, err := w.buildSnapshot(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("rebuild workflow snapshot: %w", err)
	}

	return snap, nil
}

func (w *Workflow) resolve(
	ctx context.Context, bid, cid string,
) (*Resource, error) {
	caps, err := w.client.ServerCapabilities(ctx)
	if err != nil {
		return nil, fmt.Errorf("get server capabilities: %w", err)
	}

	res, err := ResolveResource(caps, bid, cid)
	if err != nil {
		return nil, fmt.Errorf("resolve sign-off resource: %w", err)
	}

	return res, nil
}

func (w *Workflow) buildSnapshot(
	ctx context.Context, res *Resource,
) (*Snapshot, error) {
	attrs, err := w.client.Attributes(ctx, res.Source)
	if err != nil {
		w.metrics.countSnapshot("error")

		return nil, fmt.Errorf("get source attributes: %w", err)
	}

	status := currentStatus(attrs)

	snap := Snapshot{
		Source: SourceInfo{
			Location:       res.Source,
			Status:         status,
			Attributes:     *attrs,
			EditorsGroup:   res.EditorsGroup,
			ReviewersGroup: res.ReviewersGroup,
		},
		Destination: TargetInfo{Location: res.Destination},
	}

	if res.Preview != nil {
		snap.Preview = &TargetInfo{Location: *res.Preview}
	}

	// The membership checks and the change summary are independent once
	// the resource is resolved.
	grp, gCtx := errgroup.WithContext(ctx)

	grp.Go(func() error {
		member, err := GroupMembership(gCtx, w.client,
			res.Source.Bucket, res.EditorsGroup, w.actor)
		if err != nil {
			return err
		}

		snap.Source.Editor = member

		return nil
	})

	grp.Go(func() error {
		member, err := GroupMembership(gCtx, w.client,
			res.Source.Bucket, res.ReviewersGroup, w.actor)
		if err != nil {
			return err
		}

		snap.Source.Reviewer = member

		return nil
	})

	grp.Go(func() error {
		switch {
		case status == StatusWorkInProgress:
			compare := res.Destination
			if res.Preview != nil {
				compare = *res.Preview
			}

			summary, err := SummarizeChanges(gCtx, w.client,
				res.Source, compare)
			if err != nil {
				return fmt.Errorf(
					"summarise changes on source: %w", err)
			}

			snap.ChangesOnSource = summary
		case status != StatusSigned:
			summary, err := SummarizeChanges(gCtx, w.client,
				res.Source, res.Destination)
			if err != nil {
				return fmt.Errorf(
					"summarise changes on preview: %w", err)
			}

			snap.ChangesOnPreview = summary
		}

		return nil
	})

	err = grp.Wait()
	if err != nil {
		w.metrics.countSnapshot("error")

		return nil, err
	}

	w.metrics.countSnapshot("ok")

	return &snap, nil
}

func (w *Workflow) requireEditor(
	ctx context.Context, action string, res *Resource,
) error {
	member, err := GroupMembership(ctx, w.client,
		res.Source.Bucket, res.EditorsGroup, w.actor)
	if err != nil {
		return err
	}

	if !member.Allowed() {
		return ForbiddenError{
			Action: action,
			Actor:  w.actor,
			Reason: fmt.Sprintf("requires membership in %s",
				res.EditorsGroup),
		}
	}

	return nil
}

func (w *Workflow) requireReviewer(
	ctx context.Context, action string, res *Resource, lastEditor string,
) error {
	if lastEditor != "" && w.actor == lastEditor {
		return ForbiddenError{
			Action: action,
			Actor:  w.actor,
			Reason: "editors cannot review their own changes",
		}
	}

	member, err := GroupMembership(ctx, w.client,
		res.Source.Bucket, res.ReviewersGroup, w.actor)
	if err != nil {
		return err
	}

	if !member.Allowed() {
		return ForbiddenError{
			Action: action,
			Actor:  w.actor,
			Reason: fmt.Sprintf("requires membership in %s",
				res.ReviewersGroup),
		}
	}

	return nil
}
