package registry

import (
	"context"
	"net"
	"syscall"
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	for name, c := range map[string]struct {
		err       error
		transient bool
	}{
		"nil":                 {nil, false},
		"service unavailable": {&transport.Error{StatusCode: 503}, true},
		"too many requests":   {&transport.Error{StatusCode: 429}, true},
		"wrapped bad gateway": {errors.Wrap(&transport.Error{StatusCode: 502}, "uploading"), true},
		"unauthorized":        {&transport.Error{StatusCode: 401}, false},
		"forbidden":           {&transport.Error{StatusCode: 403}, false},
		"not found":           {&transport.Error{StatusCode: 404}, false},
		"ecr throttling":      {awserr.New("ThrottlingException", "slow down", nil), true},
		"ecr server error":    {awserr.New(ecr.ErrCodeServerException, "oops", nil), true},
		"ecr not found":       {awserr.New(ecr.ErrCodeRepositoryNotFoundException, "no", nil), false},
		"aws 500":             {awserr.NewRequestFailure(awserr.New("InternalFailure", "", nil), 500, "req-1"), true},
		"aws access denied":   {awserr.NewRequestFailure(awserr.New("AccessDeniedException", "", nil), 400, "req-2"), false},
		"connection refused":  {&net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		"cancelled":           {context.Canceled, false},
		"something else":      {errors.New("manifest invalid"), false},
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, c.transient, IsTransient(c.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Unit: "cart", Op: "publishing x", Attempts: 3, Transient: true, Err: errors.New("503")}
	assert.Equal(t, "unit cart: publishing x (after 3 attempts): 503", err.Error())
	assert.Equal(t, "503", errors.Cause(err.Unwrap()).Error())
}
