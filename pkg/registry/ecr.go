package registry

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ecr"
	"github.com/aws/aws-sdk-go/service/ecr/ecriface"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/pkg/errors"
)

const (
	// For recognising ECR hosts
	awsPartitionSuffix   = ".amazonaws.com"
	awsCnPartitionSuffix = ".amazonaws.com.cn"

	// How long AWS tokens remain valid, according to AWS docs; this
	// is used as an upper bound, overridden by any sooner expiry
	// returned in the API response.
	defaultTokenValid = 12 * time.Hour
	// refresh this long before the token actually expires
	expiryMargin = 5 * time.Minute
)

// ParseECRHost returns the account ID and region of an ECR registry
// host, which look like this:
//
//	<account-id>.dkr.ecr.<region>.amazonaws.com
func ParseECRHost(host string) (accountID, region string, ok bool) {
	if !strings.HasSuffix(host, awsPartitionSuffix) && !strings.HasSuffix(host, awsCnPartitionSuffix) {
		return "", "", false
	}
	bits := strings.Split(host, ".")
	if len(bits) < 6 || bits[1] != "dkr" || bits[2] != "ecr" {
		return "", "", false
	}
	return bits[0], bits[3], true
}

// NewECRService returns an ECR client for the region given, using the
// usual AWS credential chain (environment, shared config, OIDC web
// identity in CI).
func NewECRService(region string) (ecriface.ECRAPI, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            aws.Config{Region: aws.String(region)},
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating AWS session")
	}
	return ecr.New(sess), nil
}

// ECRRepositories manages repositories in an ECR registry.
type ECRRepositories struct {
	Service    ecriface.ECRAPI
	RegistryID string // the account ID; empty means the caller's account
}

func (r *ECRRepositories) registryID() *string {
	if r.RegistryID == "" {
		return nil
	}
	return aws.String(r.RegistryID)
}

func (r *ECRRepositories) Exists(ctx context.Context, name string) (bool, error) {
	_, err := r.Service.DescribeRepositoriesWithContext(ctx, &ecr.DescribeRepositoriesInput{
		RegistryId:      r.registryID(),
		RepositoryNames: aws.StringSlice([]string{name}),
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == ecr.ErrCodeRepositoryNotFoundException {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Create creates the repository. A repository that already exists,
// e.g., because a concurrent run created it first, is not an error.
func (r *ECRRepositories) Create(ctx context.Context, name string) error {
	_, err := r.Service.CreateRepositoryWithContext(ctx, &ecr.CreateRepositoryInput{
		RegistryId:     r.registryID(),
		RepositoryName: aws.String(name),
		// latest is moved on every publish
		ImageTagMutability: aws.String(ecr.ImageTagMutabilityMutable),
		ImageScanningConfiguration: &ecr.ImageScanningConfiguration{
			ScanOnPush: aws.Bool(true),
		},
	})
	if err != nil {
		var awsErr awserr.Error
		if errors.As(err, &awsErr) && awsErr.Code() == ecr.ErrCodeRepositoryAlreadyExistsException {
			return nil
		}
		return err
	}
	return nil
}

// ECRCredentials obtains a registry token from the ECR API, and keeps
// it for as long as it is valid.
type ECRCredentials struct {
	Service    ecriface.ECRAPI
	RegistryID string

	mu    sync.Mutex
	token *token
}

func (c *ECRCredentials) Authenticator(ctx context.Context) (authn.Authenticator, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != nil && time.Now().Add(expiryMargin).Before(c.token.expires) {
		return c.token, nil
	}

	input := &ecr.GetAuthorizationTokenInput{}
	if c.RegistryID != "" {
		input.RegistryIds = aws.StringSlice([]string{c.RegistryID})
	}
	out, err := c.Service.GetAuthorizationTokenWithContext(ctx, input)
	if err != nil {
		return nil, errors.Wrap(err, "fetching ECR authorization token")
	}
	if len(out.AuthorizationData) == 0 {
		return nil, errors.New("no authorization data returned by ECR")
	}
	data := out.AuthorizationData[0]
	tok, err := parseAuth(aws.StringValue(data.AuthorizationToken))
	if err != nil {
		return nil, errors.Wrap(err, "decoding ECR authorization token")
	}
	tok.expires = time.Now().Add(defaultTokenValid)
	if data.ExpiresAt != nil && data.ExpiresAt.Before(tok.expires) {
		tok.expires = *data.ExpiresAt
	}
	c.token = tok
	return c.token, nil
}

// token is a username and password for a registry. It implements
// authn.Authenticator, and never prints the password.
type token struct {
	username, password string
	expires            time.Time
}

func (t *token) Authorization() (*authn.AuthConfig, error) {
	return &authn.AuthConfig{Username: t.username, Password: t.password}, nil
}

func (t *token) String() string {
	if t.expires.IsZero() {
		return fmt.Sprintf("<registry token for %s>", t.username)
	}
	return fmt.Sprintf("<registry token for %s, expires %s>", t.username, t.expires.Format(time.RFC3339))
}

func parseAuth(auth string) (*token, error) {
	decodedAuth, err := base64.StdEncoding.DecodeString(auth)
	if err != nil {
		return nil, err
	}
	authParts := strings.SplitN(strings.TrimSpace(string(decodedAuth)), ":", 2)
	if len(authParts) != 2 {
		return nil,
			fmt.Errorf("decoded credential has wrong number of fields (expected 2, got %d)", len(authParts))
	}
	return &token{
		username: authParts[0],
		password: authParts[1],
	}, nil
}
