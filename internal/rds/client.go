// Package rds wraps the RDS control plane calls auroratag depends on.
package rds

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	rdstypes "github.com/aws/aws-sdk-go-v2/service/rds/types"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/auroratag/pkg/resource"
)

// Client reads clusters and instances and mutates their tags.
type Client struct {
	api    RDSAPI
	region string
}

type options struct {
	profile string
	region  string
}

// Option customizes how AWS config is loaded.
// With no options the default credential chain (env, shared config, the
// Lambda execution role) and AWS_REGION apply.
type Option func(*options)

// WithRegion sets the region override.
func WithRegion(region string) Option {
	return func(o *options) { o.region = region }
}

// WithProfile sets the shared config profile.
func WithProfile(profile string) Option {
	return func(o *options) { o.profile = profile }
}

// New loads AWS config and creates a client backed by the RDS SDK.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var loadOpts []func(*config.LoadOptions) error
	if o.profile != "" {
		loadOpts = append(loadOpts, config.WithSharedConfigProfile(o.profile))
	}
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	log.Debug().Str("region", awsCfg.Region).Str("profile", o.profile).Msg("aws config loaded")

	return NewWithAPI(rds.NewFromConfig(awsCfg), awsCfg.Region), nil
}

// NewWithAPI creates a client over an existing RDSAPI implementation.
func NewWithAPI(api RDSAPI, region string) *Client {
	return &Client{api: api, region: region}
}

// Region returns the region the client talks to.
func (c *Client) Region() string {
	return c.region
}

// ListClusters returns every cluster visible to the caller in a single
// describe call. Results beyond the first page are not fetched.
func (c *Client) ListClusters(ctx context.Context) ([]resource.Cluster, error) {
	output, err := c.api.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{})
	if err != nil {
		return nil, fmt.Errorf("describe db clusters: %w", err)
	}
	if output.Marker != nil {
		log.Warn().Int("returned", len(output.DBClusters)).Msg("more clusters available than a single page returns")
	}

	clusters := make([]resource.Cluster, 0, len(output.DBClusters))
	for _, cl := range output.DBClusters {
		clusters = append(clusters, convertCluster(cl))
	}
	return clusters, nil
}

// DescribeCluster looks up a single cluster by identifier.
func (c *Client) DescribeCluster(ctx context.Context, id string) (resource.Cluster, error) {
	output, err := c.api.DescribeDBClusters(ctx, &rds.DescribeDBClustersInput{
		DBClusterIdentifier: aws.String(id),
	})
	if err != nil {
		var nf *rdstypes.DBClusterNotFoundFault
		if errors.As(err, &nf) {
			return resource.Cluster{}, fmt.Errorf("%w: %s", ErrClusterNotFound, id)
		}
		return resource.Cluster{}, fmt.Errorf("describe db cluster %s: %w", id, err)
	}
	if len(output.DBClusters) == 0 {
		return resource.Cluster{}, fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	return convertCluster(output.DBClusters[0]), nil
}

// ClusterInstances returns the instances that belong to clusterID.
func (c *Client) ClusterInstances(ctx context.Context, clusterID string) ([]resource.Instance, error) {
	output, err := c.api.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		Filters: []rdstypes.Filter{
			{Name: aws.String("db-cluster-id"), Values: []string{clusterID}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe db instances of cluster %s: %w", clusterID, err)
	}

	instances := make([]resource.Instance, 0, len(output.DBInstances))
	for _, inst := range output.DBInstances {
		instances = append(instances, convertInstance(inst))
	}
	return instances, nil
}

// DescribeInstance looks up a single instance by identifier.
func (c *Client) DescribeInstance(ctx context.Context, id string) (resource.Instance, error) {
	output, err := c.api.DescribeDBInstances(ctx, &rds.DescribeDBInstancesInput{
		DBInstanceIdentifier: aws.String(id),
	})
	if err != nil {
		var nf *rdstypes.DBInstanceNotFoundFault
		if errors.As(err, &nf) {
			return resource.Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
		}
		return resource.Instance{}, fmt.Errorf("describe db instance %s: %w", id, err)
	}
	if len(output.DBInstances) == 0 {
		return resource.Instance{}, fmt.Errorf("%w: %s", ErrInstanceNotFound, id)
	}
	return convertInstance(output.DBInstances[0]), nil
}

// ListTags returns the tags attached to the resource named by arn.
func (c *Client) ListTags(ctx context.Context, arn string) (resource.Tags, error) {
	output, err := c.api.ListTagsForResource(ctx, &rds.ListTagsForResourceInput{
		ResourceName: aws.String(arn),
	})
	if err != nil {
		return nil, fmt.Errorf("list tags for %s: %w", arn, err)
	}
	return convertTags(output.TagList), nil
}

// AddTags attaches tags to the resource, overwriting values of existing keys.
func (c *Client) AddTags(ctx context.Context, arn string, tags resource.Tags) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := c.api.AddTagsToResource(ctx, &rds.AddTagsToResourceInput{
		ResourceName: aws.String(arn),
		Tags:         toRDSTags(tags),
	})
	if err != nil {
		return fmt.Errorf("add tags to %s: %w", arn, err)
	}
	return nil
}

// RemoveTags detaches the given keys from the resource.
func (c *Client) RemoveTags(ctx context.Context, arn string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := c.api.RemoveTagsFromResource(ctx, &rds.RemoveTagsFromResourceInput{
		ResourceName: aws.String(arn),
		TagKeys:      keys,
	})
	if err != nil {
		return fmt.Errorf("remove tags from %s: %w", arn, err)
	}
	return nil
}

func convertCluster(cl rdstypes.DBCluster) resource.Cluster {
	return resource.Cluster{
		ID:     aws.ToString(cl.DBClusterIdentifier),
		ARN:    aws.ToString(cl.DBClusterArn),
		Engine: aws.ToString(cl.Engine),
		Status: aws.ToString(cl.Status),
		Tags:   convertTags(cl.TagList),
	}
}

func convertInstance(inst rdstypes.DBInstance) resource.Instance {
	return resource.Instance{
		ID:        aws.ToString(inst.DBInstanceIdentifier),
		ARN:       aws.ToString(inst.DBInstanceArn),
		ClusterID: aws.ToString(inst.DBClusterIdentifier),
		Engine:    aws.ToString(inst.Engine),
		Status:    aws.ToString(inst.DBInstanceStatus),
		Tags:      convertTags(inst.TagList),
	}
}

func convertTags(tags []rdstypes.Tag) resource.Tags {
	result := make(resource.Tags, len(tags))
	for _, tag := range tags {
		result[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return result
}

// toRDSTags converts in sorted key order so API calls are deterministic.
func toRDSTags(tags resource.Tags) []rdstypes.Tag {
	out := make([]rdstypes.Tag, 0, len(tags))
	for _, k := range tags.Keys() {
		out = append(out, rdstypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}
