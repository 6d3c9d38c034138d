package rds

import (
	"errors"

	"github.com/aws/smithy-go"
)

var (
	// ErrInstanceNotFound is returned when a DB instance lookup finds nothing.
	ErrInstanceNotFound = errors.New("db instance not found")
	// ErrClusterNotFound is returned when a DB cluster lookup finds nothing.
	ErrClusterNotFound = errors.New("db cluster not found")
)

// APIErrorCode returns the AWS error code carried by err, or "" when err
// did not come from the service.
func APIErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}
