package signoff

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ttab/elephant-signoff/store"
)

// CapabilityName is the key under which the store advertises its review
// configuration in the server capability map.
const CapabilityName = "signer"

// Scope records whether a resource was configured for one collection or
// for a whole bucket. Bucket-wide resources are normalised to concrete
// collections at resolution time, so downstream code never branches on
// this.
type Scope int

const (
	ScopePerCollection Scope = iota
	ScopePerBucket
)

// Resource is a resolved review triple. The group names have had the
// collection id placeholder expanded and the locations are always fully
// qualified.
type Resource struct {
	Scope          Scope
	Source         store.Location
	Preview        *store.Location
	Destination    store.Location
	EditorsGroup   string
	ReviewersGroup string
}

const (
	groupPlaceholder      = "{collection_id}"
	defaultEditorsGroup   = groupPlaceholder + "-editors"
	defaultReviewersGroup = groupPlaceholder + "-reviewers"
)

type signerCapability struct {
	Resources      []signerResource `json:"resources"`
	EditorsGroup   string           `json:"editors_group"`
	ReviewersGroup string           `json:"reviewers_group"`
}

type signerResource struct {
	Source         store.Location  `json:"source"`
	Preview        *store.Location `json:"preview"`
	Destination    store.Location  `json:"destination"`
	EditorsGroup   string          `json:"editors_group"`
	ReviewersGroup string          `json:"reviewers_group"`
}

// ResolveResource maps the viewed collection to a configured review
// triple. It returns nil without an error when the server doesn't have
// the review capability or no resource matches, as an unconfigured
// collection just means that review doesn't apply there.
func ResolveResource(
	caps store.Capabilities, bid, cid string,
) (*Resource, error) {
	raw, ok := caps[CapabilityName]
	if !ok {
		return nil, nil
	}

	var conf signerCapability

	err := json.Unmarshal(raw, &conf)
	if err != nil {
		return nil, fmt.Errorf("invalid %q capability: %w",
			CapabilityName, err)
	}

	current := store.Location{Bucket: bid, Collection: cid}

	for _, res := range conf.Resources {
		scope, ok := matchResource(res, current)
		if !ok {
			continue
		}

		resolved := Resource{
			Scope:       scope,
			Source:      res.Source,
			Destination: res.Destination,
		}

		if res.Preview != nil {
			preview := *res.Preview
			resolved.Preview = &preview
		}

		if scope == ScopePerBucket {
			// Pin the bucket-wide triple to the collection being
			// viewed.
			resolved.Source.Collection = cid
			resolved.Destination.Collection = cid

			if resolved.Preview != nil {
				resolved.Preview.Collection = cid
			}
		}

		resolved.EditorsGroup = expandGroup(firstNonEmpty(
			res.EditorsGroup, conf.EditorsGroup, defaultEditorsGroup,
		), cid)
		resolved.ReviewersGroup = expandGroup(firstNonEmpty(
			res.ReviewersGroup, conf.ReviewersGroup, defaultReviewersGroup,
		), cid)

		return &resolved, nil
	}

	return nil, nil
}

// matchResource checks whether the viewed collection belongs to the
// resource. A resource without a source collection is configured for the
// whole bucket and matches every collection in it.
func matchResource(
	res signerResource, current store.Location,
) (Scope, bool) {
	if res.Source.Collection == "" {
		buckets := []string{
			res.Source.Bucket,
			res.Destination.Bucket,
		}

		if res.Preview != nil {
			buckets = append(buckets, res.Preview.Bucket)
		}

		for _, bucket := range buckets {
			if bucket == current.Bucket {
				return ScopePerBucket, true
			}
		}

		return 0, false
	}

	locations := []store.Location{
		res.Source,
		res.Destination,
	}

	if res.Preview != nil {
		locations = append(locations, *res.Preview)
	}

	for _, loc := range locations {
		if loc == current {
			return ScopePerCollection, true
		}
	}

	return 0, false
}

func expandGroup(template, cid string) string {
	return strings.ReplaceAll(template, groupPlaceholder, cid)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
