package multitable

import "fmt"

// PlanConflict decides what happens when an imported plan description
// already exists in the store.
type PlanConflict string

const (
	// PlanRefresh overwrites the stored price with the imported one.
	PlanRefresh PlanConflict = "refresh"
	// PlanKeep leaves the stored plan untouched.
	PlanKeep PlanConflict = "keep"
)

// ContactPolicy selects how contacts are written.
type ContactPolicy string

const (
	// ContactBulk filters contacts against a snapshot and bulk inserts them.
	ContactBulk ContactPolicy = "bulk"
	// ContactPerRow filters the same way, then inserts row by row, skipping
	// any row a uniqueness constraint rejects.
	ContactPerRow ContactPolicy = "per_row"
)

// Options tune one import run.
type Options struct {
	PlanConflict  PlanConflict
	ContactPolicy ContactPolicy

	// StatusFallbackID is written as contract.status_id when a row's status
	// is empty or unknown. Zero writes null.
	StatusFallbackID int64
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		PlanConflict:     PlanRefresh,
		ContactPolicy:    ContactBulk,
		StatusFallbackID: 1,
	}
}

// Validate rejects unknown enum values and fills empty ones with defaults.
func (o *Options) Validate() error {
	switch o.PlanConflict {
	case "":
		o.PlanConflict = PlanRefresh
	case PlanRefresh, PlanKeep:
	default:
		return fmt.Errorf("plan conflict must be refresh or keep, got %q", o.PlanConflict)
	}
	switch o.ContactPolicy {
	case "":
		o.ContactPolicy = ContactBulk
	case ContactBulk, ContactPerRow:
	default:
		return fmt.Errorf("contact policy must be bulk or per_row, got %q", o.ContactPolicy)
	}
	if o.StatusFallbackID < 0 {
		return fmt.Errorf("status fallback id must be >= 0, got %d", o.StatusFallbackID)
	}
	return nil
}
