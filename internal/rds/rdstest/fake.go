// Package rdstest provides an in-memory RDS control plane for tests.
package rdstest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
)

const (
	region  = "us-east-1"
	account = "123456789012"
)

// Operation names used for call counting and error injection.
const (
	OpDescribeDBClusters     = "DescribeDBClusters"
	OpDescribeDBInstances    = "DescribeDBInstances"
	OpListTagsForResource    = "ListTagsForResource"
	OpAddTagsToResource      = "AddTagsToResource"
	OpRemoveTagsFromResource = "RemoveTagsFromResource"
)

// ClusterARN returns the ARN the fake assigns to a cluster.
func ClusterARN(id string) string {
	return fmt.Sprintf("arn:aws:rds:%s:%s:cluster:%s", region, account, id)
}

// InstanceARN returns the ARN the fake assigns to an instance.
func InstanceARN(id string) string {
	return fmt.Sprintf("arn:aws:rds:%s:%s:db:%s", region, account, id)
}

type cluster struct {
	id     string
	engine string
}

type instance struct {
	id        string
	clusterID string
	engine    string
}

// Fake implements the RDS operations auroratag uses against in-memory state.
// Tags added to an existing key overwrite its value, as the service does.
type Fake struct {
	mu        sync.Mutex
	clusters  []cluster
	instances []instance
	tags      map[string]map[string]string
	calls     map[string]int
	errs      map[string]error
}

// New creates an empty fake.
func New() *Fake {
	return &Fake{
		tags:  make(map[string]map[string]string),
		calls: make(map[string]int),
		errs:  make(map[string]error),
	}
}

// AddCluster registers a cluster with initial tags.
func (f *Fake) AddCluster(id, engine string, tags map[string]string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clusters = append(f.clusters, cluster{id: id, engine: engine})
	f.tags[ClusterARN(id)] = copyTags(tags)
	return f
}

// AddInstance registers an instance; clusterID may be empty.
func (f *Fake) AddInstance(id, clusterID string, tags map[string]string) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	engine := "aurora-postgresql"
	if clusterID == "" {
		engine = "postgres"
	}
	f.instances = append(f.instances, instance{id: id, clusterID: clusterID, engine: engine})
	f.tags[InstanceARN(id)] = copyTags(tags)
	return f
}

// FailOn makes every subsequent call to op return err.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = err
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Tags returns a copy of the tags stored for arn.
func (f *Fake) Tags(arn string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyTags(f.tags[arn])
}

func (f *Fake) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.errs[op]
}

// DescribeDBClusters implements the RDS API.
func (f *Fake) DescribeDBClusters(_ context.Context, params *rds.DescribeDBClustersInput, _ ...func(*rds.Options)) (*rds.DescribeDBClustersOutput, error) {
	if err := f.enter(OpDescribeDBClusters); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	want := aws.ToString(params.DBClusterIdentifier)
	out := &rds.DescribeDBClustersOutput{}
	for _, c := range f.clusters {
		if want != "" && c.id != want {
			continue
		}
		out.DBClusters = append(out.DBClusters, rdstypes.DBCluster{
			DBClusterIdentifier: aws.String(c.id),
			DBClusterArn:        aws.String(ClusterARN(c.id)),
			Engine:              aws.String(c.engine),
			Status:              aws.String("available"),
			TagList:             toTagList(f.tags[ClusterARN(c.id)]),
		})
	}
	if want != "" && len(out.DBClusters) == 0 {
		return nil, &rdstypes.DBClusterNotFoundFault{Message: aws.String("DBCluster " + want + " not found.")}
	}
	return out, nil
}

// DescribeDBInstances implements the RDS API, honouring the db-cluster-id filter.
func (f *Fake) DescribeDBInstances(_ context.Context, params *rds.DescribeDBInstancesInput, _ ...func(*rds.Options)) (*rds.DescribeDBInstancesOutput, error) {
	if err := f.enter(OpDescribeDBInstances); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	want := aws.ToString(params.DBInstanceIdentifier)
	var clusterIDs []string
	for _, filter := range params.Filters {
		if aws.ToString(filter.Name) == "db-cluster-id" {
			clusterIDs = append(clusterIDs, filter.Values...)
		}
	}

	out := &rds.DescribeDBInstancesOutput{}
	for _, i := range f.instances {
		if want != "" && i.id != want {
			continue
		}
		if len(clusterIDs) > 0 && !contains(clusterIDs, i.clusterID) {
			continue
		}
		inst := rdstypes.DBInstance{
			DBInstanceIdentifier: aws.String(i.id),
			DBInstanceArn:        aws.String(InstanceARN(i.id)),
			Engine:               aws.String(i.engine),
			DBInstanceStatus:     aws.String("available"),
			TagList:              toTagList(f.tags[InstanceARN(i.id)]),
		}
		if i.clusterID != "" {
			inst.DBClusterIdentifier = aws.String(i.clusterID)
		}
		out.DBInstances = append(out.DBInstances, inst)
	}
	if want != "" && len(out.DBInstances) == 0 {
		return nil, &rdstypes.DBInstanceNotFoundFault{Message: aws.String("DBInstance " + want + " not found.")}
	}
	return out, nil
}

// ListTagsForResource implements the RDS API.
func (f *Fake) ListTagsForResource(_ context.Context, params *rds.ListTagsForResourceInput, _ ...func(*rds.Options)) (*rds.ListTagsForResourceOutput, error) {
	if err := f.enter(OpListTagsForResource); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tags, ok := f.tags[aws.ToString(params.ResourceName)]
	if !ok {
		return nil, &rdstypes.DBInstanceNotFoundFault{Message: aws.String("resource not found")}
	}
	return &rds.ListTagsForResourceOutput{TagList: toTagList(tags)}, nil
}

// AddTagsToResource implements the RDS API.
func (f *Fake) AddTagsToResource(_ context.Context, params *rds.AddTagsToResourceInput, _ ...func(*rds.Options)) (*rds.AddTagsToResourceOutput, error) {
	if err := f.enter(OpAddTagsToResource); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tags, ok := f.tags[aws.ToString(params.ResourceName)]
	if !ok {
		return nil, &rdstypes.DBInstanceNotFoundFault{Message: aws.String("resource not found")}
	}
	for _, tag := range params.Tags {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return &rds.AddTagsToResourceOutput{}, nil
}

// RemoveTagsFromResource implements the RDS API.
func (f *Fake) RemoveTagsFromResource(_ context.Context, params *rds.RemoveTagsFromResourceInput, _ ...func(*rds.Options)) (*rds.RemoveTagsFromResourceOutput, error) {
	if err := f.enter(OpRemoveTagsFromResource); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	tags, ok := f.tags[aws.ToString(params.ResourceName)]
	if !ok {
		return nil, &rdstypes.DBInstanceNotFoundFault{Message: aws.String("resource not found")}
	}
	for _, k := range params.TagKeys {
		delete(tags, k)
	}
	return &rds.RemoveTagsFromResourceOutput{}, nil
}

func toTagList(tags map[string]string) []rdstypes.Tag {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]rdstypes.Tag, 0, len(keys))
	for _, k := range keys {
		list = append(list, rdstypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return list
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

func contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
