package resource

// DiffType represents the type of change to a single tag.
type DiffType string

const (
	// DiffAdded indicates a key present only in the desired set.
	DiffAdded DiffType = "added"
	// DiffDeleted indicates a key present only in the current set.
	DiffDeleted DiffType = "deleted"
	// DiffModified indicates a key whose value differs.
	DiffModified DiffType = "modified"
)

// Change represents a single tag change.
// The tag key is the map key in TagDiff.Changes.
type Change struct {
	Type     DiffType `json:"type"`
	Previous string   `json:"previous,omitempty"`
	Current  string   `json:"current,omitempty"`
}

// TagDiff describes how a full replacement turns one tag set into another.
// Remove lists every current key because replacement drops the old set
// wholesale; Changes is the key-level view of the same transition.
type TagDiff struct {
	Remove  []string          `json:"remove"`
	Add     Tags              `json:"add"`
	Changes map[string]Change `json:"changes,omitempty"`
}

// Empty reports whether the replacement leaves the tag set unchanged.
func (d TagDiff) Empty() bool {
	return len(d.Changes) == 0
}

// DiffTags computes the replacement of current by desired.
func DiffTags(current, desired Tags) TagDiff {
	d := TagDiff{
		Remove:  current.Keys(),
		Add:     desired.Clone(),
		Changes: make(map[string]Change),
	}

	for k, prev := range current {
		next, ok := desired[k]
		switch {
		case !ok:
			d.Changes[k] = Change{Type: DiffDeleted, Previous: prev}
		case next != prev:
			d.Changes[k] = Change{Type: DiffModified, Previous: prev, Current: next}
		}
	}
	for k, next := range desired {
		if _, ok := current[k]; !ok {
			d.Changes[k] = Change{Type: DiffAdded, Current: next}
		}
	}

	return d
}
