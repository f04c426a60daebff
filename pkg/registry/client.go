package registry

import (
	"context"
	"net/http"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/remote"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/registry/middleware"
)

// Client is the registry API the publisher needs.
type Client interface {
	// Write uploads the image under the tag. The tag only becomes
	// visible once every blob of the image has been uploaded.
	Write(ctx context.Context, tag name.Tag, img v1.Image) error
	// Tag points another tag at an image already uploaded.
	Tag(ctx context.Context, tag name.Tag, img v1.Image) error
	// Digest returns the digest the reference currently resolves to.
	Digest(ctx context.Context, ref name.Reference) (v1.Hash, error)
}

// RemoteClient talks to a registry with go-containerregistry. It does
// no retrying of its own.
type RemoteClient struct {
	Credentials Credentials
	Limiters    *middleware.RateLimiters
	// Transport defaults to remote.DefaultTransport
	Transport http.RoundTripper
}

func (c *RemoteClient) options(ctx context.Context) ([]remote.Option, error) {
	creds := c.Credentials
	if creds == nil {
		creds = Anonymous
	}
	auth, err := creds.Authenticator(ctx)
	if err != nil {
		return nil, err
	}
	tx := c.Transport
	if tx == nil {
		tx = remote.DefaultTransport
	}
	if c.Limiters != nil {
		tx = c.Limiters.Transport(tx)
	}
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuth(auth),
		remote.WithTransport(tx),
		// retries are counted and spaced by the publisher
		remote.WithRetryBackoff(remote.Backoff{Steps: 1}),
		remote.WithRetryStatusCodes(),
	}, nil
}

func (c *RemoteClient) Write(ctx context.Context, tag name.Tag, img v1.Image) error {
	opts, err := c.options(ctx)
	if err != nil {
		return err
	}
	return remote.Write(tag, img, opts...)
}

func (c *RemoteClient) Tag(ctx context.Context, tag name.Tag, img v1.Image) error {
	opts, err := c.options(ctx)
	if err != nil {
		return err
	}
	return remote.Tag(tag, img, opts...)
}

func (c *RemoteClient) Digest(ctx context.Context, ref name.Reference) (v1.Hash, error) {
	opts, err := c.options(ctx)
	if err != nil {
		return v1.Hash{}, err
	}
	desc, err := remote.Head(ref, opts...)
	if err != nil {
		return v1.Hash{}, err
	}
	return desc.Digest, nil
}

// Recover tells the rate limiter that requests to the host went
// fine.
func (c *RemoteClient) Recover(host string) {
	if c.Limiters != nil {
		c.Limiters.Recover(host)
	}
}
