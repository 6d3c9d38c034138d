// Package resource defines the cluster and instance model for auroratag.
package resource

import (
	"sort"
	"time"
)

// Tags maps tag keys to values. Keys are unique per resource.
type Tags map[string]string

// Has reports whether the tag set carries key with exactly value.
func (t Tags) Has(key, value string) bool {
	v, ok := t[key]
	return ok && v == value
}

// Keys returns the tag keys in sorted order.
func (t Tags) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a copy of the tag set. A nil set clones to an empty one.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Equal reports whether both tag sets hold the same key/value pairs.
func (t Tags) Equal(other Tags) bool {
	if len(t) != len(other) {
		return false
	}
	for k, v := range t {
		if !other.Has(k, v) {
			return false
		}
	}
	return true
}

// Cluster is a managed multi-instance database grouping.
type Cluster struct {
	ID     string `json:"id"`
	ARN    string `json:"arn"`
	Engine string `json:"engine"`
	Status string `json:"status"`
	Tags   Tags   `json:"tags,omitempty"`
}

// Instance is a single database node. ClusterID is empty for standalone instances.
type Instance struct {
	ID        string `json:"id"`
	ARN       string `json:"arn"`
	ClusterID string `json:"cluster_id,omitempty"`
	Engine    string `json:"engine"`
	Status    string `json:"status"`
	Tags      Tags   `json:"tags,omitempty"`
}

// InCluster reports whether the instance is a member of a cluster.
func (i Instance) InCluster() bool {
	return i.ClusterID != ""
}

// Kind names the type of resource an outcome refers to.
type Kind string

const (
	KindCluster  Kind = "cluster"
	KindInstance Kind = "instance"
)

// Action is what a run did (or would have done) to a resource.
type Action string

const (
	// ActionTagged means the tag was added.
	ActionTagged Action = "tagged"
	// ActionAlreadyTagged means the tag was present and nothing was written.
	ActionAlreadyTagged Action = "already_tagged"
	// ActionReplaced means the resource's tag set was replaced.
	ActionReplaced Action = "replaced"
	// ActionSkipped means the resource was filtered out or could not be acted on.
	ActionSkipped Action = "skipped"
	// ActionWouldTag is the dry-run form of ActionTagged.
	ActionWouldTag Action = "would_tag"
	// ActionWouldReplace is the dry-run form of ActionReplaced.
	ActionWouldReplace Action = "would_replace"
)

// Outcome records the action taken on one resource.
type Outcome struct {
	Kind      Kind   `json:"kind"`
	ID        string `json:"id"`
	ClusterID string `json:"cluster_id"`
	Action    Action `json:"action"`
	Reason    string `json:"reason,omitempty"`
}

// SweepReport summarises a self-tagging sweep.
type SweepReport struct {
	Mode      string        `json:"mode"`
	Key       string        `json:"key"`
	DryRun    bool          `json:"dry_run"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Outcomes  []Outcome     `json:"outcomes"`
}

// Count returns the number of outcomes of the given kind and action.
func (r SweepReport) Count(kind Kind, action Action) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == kind && o.Action == action {
			n++
		}
	}
	return n
}

// PropagationReport summarises copying a cluster's tags onto one instance.
type PropagationReport struct {
	InstanceID string        `json:"instance_id"`
	ClusterID  string        `json:"cluster_id,omitempty"`
	Orphan     bool          `json:"orphan"`
	DryRun     bool          `json:"dry_run"`
	Diff       TagDiff       `json:"diff"`
	Outcome    Outcome       `json:"outcome"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
}
