package registry

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/pkg/errors"
)

// Error is a failure to publish a unit's artifact. Transient errors
// were retried before being returned.
type Error struct {
	Unit      string
	Op        string
	Transient bool
	Attempts  int
	Err       error
}

func (e *Error) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("unit %s: %s (after %d attempts): %v", e.Unit, e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("unit %s: %s: %v", e.Unit, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

var throttlingCodes = map[string]bool{
	"Throttling":                             true,
	"ThrottlingException":                    true,
	"ThrottledException":                     true,
	"RequestThrottledException":              true,
	"TooManyRequestsException":               true,
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"RequestTimeout":                         true,
	"RequestTimeoutException":                true,
	ecr.ErrCodeServerException:               true,
	request.ErrCodeRequestError:              true,
	request.ErrCodeResponseTimeout:           true,
	request.ErrCodeRead:                      true,
}

// IsTransient reports whether the error is worth retrying: network
// trouble, server errors and throttling. Refusals (bad credentials,
// missing permissions, unknown repositories) are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var terr *transport.Error
	if errors.As(err, &terr) {
		return statusIsTransient(terr.StatusCode)
	}

	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) {
		if throttlingCodes[reqErr.Code()] {
			return true
		}
		return statusIsTransient(reqErr.StatusCode())
	}
	var awsErr awserr.Error
	if errors.As(err, &awsErr) {
		return throttlingCodes[awsErr.Code()]
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func statusIsTransient(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusRequestTimeout || code >= 500
}
