package registry

import (
	"context"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/pkg/errors"
)

// Credentials supply the pipeline-scoped token used to talk to the
// registry. Implementations must not log the secret.
type Credentials interface {
	Authenticator(ctx context.Context) (authn.Authenticator, error)
}

// KeychainCredentials resolves credentials for the registry host from
// a keychain, by default the docker config of the CI job.
type KeychainCredentials struct {
	Host     string
	Keychain authn.Keychain
}

func (c KeychainCredentials) Authenticator(ctx context.Context) (authn.Authenticator, error) {
	reg, err := name.NewRegistry(c.Host)
	if err != nil {
		return nil, err
	}
	kc := c.Keychain
	if kc == nil {
		kc = authn.DefaultKeychain
	}
	auth, err := kc.Resolve(reg)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving credentials for %s", c.Host)
	}
	return auth, nil
}

// StaticCredentials are a username and token given up front, e.g.,
// from the environment.
func StaticCredentials(username, password string) Credentials {
	return staticCredentials{&token{username: username, password: password}}
}

type staticCredentials struct {
	*token
}

func (c staticCredentials) Authenticator(ctx context.Context) (authn.Authenticator, error) {
	return c.token, nil
}

// Anonymous is for registries that need no credentials.
var Anonymous Credentials = anonymous{}

type anonymous struct{}

func (anonymous) Authenticator(ctx context.Context) (authn.Authenticator, error) {
	return authn.Anonymous, nil
}
