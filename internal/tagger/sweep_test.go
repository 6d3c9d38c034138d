package tagger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/auroratag/internal/filter"
	"github.com/yairfalse/auroratag/internal/rds"
	"github.com/yairfalse/auroratag/internal/rds/rdstest"
	"github.com/yairfalse/auroratag/pkg/resource"
)

var _ Backend = (*rds.Client)(nil)

// newInventory builds two clusters plus a standalone instance:
//
//	orders  -> orders-1 (already tagged), orders-2
//	billing -> billing-1
//	solo (no cluster)
func newInventory() *rdstest.Fake {
	return rdstest.New().
		AddCluster("orders", "aurora-postgresql", map[string]string{"env": "prod"}).
		AddCluster("billing", "aurora-mysql", nil).
		AddInstance("orders-1", "orders", map[string]string{"aurora_cluster": "orders"}).
		AddInstance("orders-2", "orders", nil).
		AddInstance("billing-1", "billing", map[string]string{"aurora_cluster": "stale"}).
		AddInstance("solo", "", nil)
}

func newSweeper(fake *rdstest.Fake, buf *bytes.Buffer, opts SweepOptions) *Sweeper {
	return NewSweeper(rds.NewWithAPI(fake, "us-east-1"), zerolog.New(buf), opts)
}

func assertSelfTagged(t *testing.T, fake *rdstest.Fake, key string) {
	t.Helper()
	for cluster, members := range map[string][]string{
		"orders":  {"orders-1", "orders-2"},
		"billing": {"billing-1"},
	} {
		assert.Equal(t, cluster, fake.Tags(rdstest.ClusterARN(cluster))[key], "cluster %s", cluster)
		for _, inst := range members {
			assert.Equal(t, cluster, fake.Tags(rdstest.InstanceARN(inst))[key], "instance %s", inst)
		}
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("checked")
	require.NoError(t, err)
	assert.Equal(t, ModeChecked, m)

	m, err = ParseMode("unconditional")
	require.NoError(t, err)
	assert.Equal(t, ModeUnconditional, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeChecked, m)

	_, err = ParseMode("eventually")
	require.Error(t, err)
}

func TestDefaultKey(t *testing.T) {
	assert.Equal(t, "aurora_cluster", DefaultKey(ModeChecked))
	assert.Equal(t, "cluster", DefaultKey(ModeUnconditional))
}

func TestSweep_Checked(t *testing.T) {
	fake := newInventory()
	var buf bytes.Buffer
	s := newSweeper(fake, &buf, SweepOptions{Mode: ModeChecked})

	report, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "aurora_cluster", report.Key)
	assertSelfTagged(t, fake, "aurora_cluster")

	// orders, orders-2 and billing need the tag; billing-1 carries a stale value.
	assert.Equal(t, 4, fake.Calls(rdstest.OpAddTagsToResource))
	assert.Equal(t, 1, report.Count(resource.KindInstance, resource.ActionAlreadyTagged))
	assert.Equal(t, 2, report.Count(resource.KindCluster, resource.ActionTagged))
	assert.Equal(t, 2, report.Count(resource.KindInstance, resource.ActionTagged))

	// Existing tags are kept.
	assert.Equal(t, "prod", fake.Tags(rdstest.ClusterARN("orders"))["env"])
	// Standalone instances are never enumerated.
	assert.Empty(t, fake.Tags(rdstest.InstanceARN("solo")))

	assert.Contains(t, buf.String(), "tag already exists on instance orders-1")
	assert.Contains(t, buf.String(), "tagged cluster orders")
}

func TestSweep_CheckedIsIdempotent(t *testing.T) {
	fake := newInventory()
	s := newSweeper(fake, &bytes.Buffer{}, SweepOptions{Mode: ModeChecked})

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	after1 := snapshot(fake)
	adds := fake.Calls(rdstest.OpAddTagsToResource)

	report, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, after1, snapshot(fake))
	assert.Equal(t, adds, fake.Calls(rdstest.OpAddTagsToResource), "second sweep writes nothing")
	for _, o := range report.Outcomes {
		assert.Equal(t, resource.ActionAlreadyTagged, o.Action, o.ID)
	}
}

func TestSweep_Unconditional(t *testing.T) {
	fake := newInventory()
	s := newSweeper(fake, &bytes.Buffer{}, SweepOptions{Mode: ModeUnconditional})

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)
	after1 := snapshot(fake)

	assert.Equal(t, "cluster", s.Key())
	assertSelfTagged(t, fake, "cluster")
	assert.Equal(t, 5, fake.Calls(rdstest.OpAddTagsToResource))
	assert.Equal(t, 0, fake.Calls(rdstest.OpListTagsForResource))

	_, err = s.Sweep(context.Background())
	require.NoError(t, err)

	// The second run repeats every call but lands on the same state.
	assert.Equal(t, 10, fake.Calls(rdstest.OpAddTagsToResource))
	assert.Equal(t, after1, snapshot(fake))
}

func TestSweep_CustomKey(t *testing.T) {
	fake := newInventory()
	s := newSweeper(fake, &bytes.Buffer{}, SweepOptions{Mode: ModeChecked, Key: "owner_cluster"})

	_, err := s.Sweep(context.Background())
	require.NoError(t, err)

	assertSelfTagged(t, fake, "owner_cluster")
}

func TestSweep_DryRun(t *testing.T) {
	fake := newInventory()
	before := snapshot(fake)
	s := newSweeper(fake, &bytes.Buffer{}, SweepOptions{Mode: ModeChecked, DryRun: true})

	report, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 0, fake.Calls(rdstest.OpAddTagsToResource))
	assert.Equal(t, before, snapshot(fake))
	assert.Equal(t, 2, report.Count(resource.KindCluster, resource.ActionWouldTag))
	assert.Equal(t, 2, report.Count(resource.KindInstance, resource.ActionWouldTag))
}

func TestSweep_FilterSkipsCluster(t *testing.T) {
	fake := newInventory()
	f, err := filter.New(filter.Options{ExcludeIDs: []string{"bill*"}})
	require.NoError(t, err)
	s := newSweeper(fake, &bytes.Buffer{}, SweepOptions{Mode: ModeChecked, Filter: f})

	report, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.NotContains(t, fake.Tags(rdstest.ClusterARN("billing")), "aurora_cluster")
	assert.Equal(t, "stale", fake.Tags(rdstest.InstanceARN("billing-1"))["aurora_cluster"])
	assert.Equal(t, 1, report.Count(resource.KindCluster, resource.ActionSkipped))
	assert.Equal(t, "orders", fake.Tags(rdstest.InstanceARN("orders-2"))["aurora_cluster"])
}

func TestSweep_ListClustersError(t *testing.T) {
	fake := newInventory()
	fake.FailOn(rdstest.OpDescribeDBClusters, errors.New("access denied"))
	s := newSweeper(fake, &bytes.Buffer{}, SweepOptions{})

	_, err := s.Sweep(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestSweep_AddTagsErrorAborts(t *testing.T) {
	fake := newInventory()
	fake.FailOn(rdstest.OpAddTagsToResource, errors.New("throttled"))
	s := newSweeper(fake, &bytes.Buffer{}, SweepOptions{Mode: ModeUnconditional})

	report, err := s.Sweep(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
	assert.Empty(t, report.Outcomes)
	assert.Equal(t, 1, fake.Calls(rdstest.OpAddTagsToResource))
}

func TestSweep_NoClusters(t *testing.T) {
	fake := rdstest.New()
	s := newSweeper(fake, &bytes.Buffer{}, SweepOptions{})

	report, err := s.Sweep(context.Background())

	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
}

func snapshot(fake *rdstest.Fake) map[string]map[string]string {
	out := make(map[string]map[string]string)
	for _, c := range []string{"orders", "billing"} {
		out[rdstest.ClusterARN(c)] = fake.Tags(rdstest.ClusterARN(c))
	}
	for _, i := range []string{"orders-1", "orders-2", "billing-1", "solo"} {
		out[rdstest.InstanceARN(i)] = fake.Tags(rdstest.InstanceARN(i))
	}
	return out
}
