package registry

import (
	"context"
	"errors"
	"io/ioutil"
	stdlog "log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/go-kit/kit/log"
	"github.com/google/go-containerregistry/pkg/name"
	ggcrregistry "github.com/google/go-containerregistry/pkg/registry"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/registry/middleware"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

// flakyRegistry fails the first manifest uploads with the status
// given, and serves everything else from an in-memory registry.
type flakyRegistry struct {
	next     http.Handler
	status   int
	failPuts int

	mu   sync.Mutex
	puts int
}

func (f *flakyRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut && strings.Contains(r.URL.Path, "/manifests/") {
		f.mu.Lock()
		f.puts++
		fail := f.puts <= f.failPuts
		f.mu.Unlock()
		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(f.status)
			w.Write([]byte(`{"errors":[{"code":"UNAVAILABLE","message":"try again"}]}`))
			return
		}
	}
	f.next.ServeHTTP(w, r)
}

func (f *flakyRegistry) manifestPuts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

type fakeRepositories struct {
	existing  map[string]bool
	created   []string
	createErr error

	// returned by the first calls to Exists, in order
	existsErrs  []error
	existsCalls int
}

func (r *fakeRepositories) Exists(ctx context.Context, name string) (bool, error) {
	r.existsCalls++
	if len(r.existsErrs) > 0 {
		err := r.existsErrs[0]
		r.existsErrs = r.existsErrs[1:]
		return false, err
	}
	return r.existing[name], nil
}

func (r *fakeRepositories) Create(ctx context.Context, name string) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.created = append(r.created, name)
	return nil
}

var cart = unit.Unit{Name: "cart", Repository: "retail-store-sample-cart"}

func setup(t *testing.T, status, failPuts int) (*Publisher, *flakyRegistry, *fakeRepositories, func()) {
	reg := &flakyRegistry{
		next:     ggcrregistry.New(ggcrregistry.Logger(stdlog.New(ioutil.Discard, "", 0))),
		status:   status,
		failPuts: failPuts,
	}
	server := httptest.NewServer(reg)
	repos := &fakeRepositories{existing: map[string]bool{}}
	p := &Publisher{
		Host:         strings.TrimPrefix(server.URL, "http://"),
		Insecure:     true,
		Repositories: repos,
		Client: NewInstrumentedClient(&RemoteClient{
			Limiters: &middleware.RateLimiters{RPS: 100, Burst: 20},
		}),
		Backoff: wait.Backoff{Duration: time.Millisecond, Factor: 2, Steps: 3},
		Logger:  log.NewNopLogger(),
	}
	return p, reg, repos, server.Close
}

func randomImage(t *testing.T) (v1.Image, v1.Hash) {
	img, err := random.Image(512, 2)
	require.NoError(t, err)
	digest, err := img.Digest()
	require.NoError(t, err)
	return img, digest
}

func TestPublish(t *testing.T) {
	p, reg, repos, cleanup := setup(t, 0, 0)
	defer cleanup()
	img, digest := randomImage(t)

	loc, err := p.Publish(context.Background(), cart, img, "9f3c2ab")
	require.NoError(t, err)
	assert.Equal(t, p.Host+"/retail-store-sample-cart", loc.Repository)
	assert.Equal(t, "9f3c2ab", loc.Tag)
	assert.Equal(t, digest.String(), loc.Digest)
	assert.Equal(t, []string{"retail-store-sample-cart"}, repos.created)
	// revision tag, then latest
	assert.Equal(t, 2, reg.manifestPuts())

	for _, tag := range []string{"9f3c2ab", LatestTag} {
		ref, err := name.NewTag(loc.Repository+":"+tag, name.Insecure)
		require.NoError(t, err)
		desc, err := remote.Head(ref)
		require.NoError(t, err)
		assert.Equal(t, digest, desc.Digest, tag)
	}
}

func TestPublishRetriesTransientFailure(t *testing.T) {
	p, reg, _, cleanup := setup(t, http.StatusServiceUnavailable, 1)
	defer cleanup()
	img, digest := randomImage(t)

	loc, err := p.Publish(context.Background(), cart, img, "9f3c2ab")
	require.NoError(t, err)
	assert.Equal(t, digest.String(), loc.Digest)
	// the failed upload, the successful one, and latest
	assert.Equal(t, 3, reg.manifestPuts())
}

func TestPublishGivesUpAfterThreeAttempts(t *testing.T) {
	p, reg, _, cleanup := setup(t, http.StatusServiceUnavailable, 100)
	defer cleanup()
	img, _ := randomImage(t)

	_, err := p.Publish(context.Background(), cart, img, "9f3c2ab")
	require.Error(t, err)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "cart", perr.Unit)
	assert.True(t, perr.Transient)
	assert.Equal(t, 3, perr.Attempts)
	assert.Equal(t, 3, reg.manifestPuts())
}

func TestPublishRefusalIsNotRetried(t *testing.T) {
	p, reg, _, cleanup := setup(t, http.StatusForbidden, 100)
	defer cleanup()
	img, _ := randomImage(t)

	_, err := p.Publish(context.Background(), cart, img, "9f3c2ab")
	require.Error(t, err)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.False(t, perr.Transient)
	assert.Equal(t, 1, perr.Attempts)
	assert.Equal(t, 1, reg.manifestPuts())
}

func TestPublishRepositoryCreationFailure(t *testing.T) {
	p, reg, repos, cleanup := setup(t, 0, 0)
	defer cleanup()
	repos.createErr = errors.New("AccessDeniedException: not allowed to create repositories")
	img, _ := randomImage(t)

	_, err := p.Publish(context.Background(), cart, img, "9f3c2ab")
	require.Error(t, err)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 0, perr.Attempts)
	assert.Equal(t, 0, reg.manifestPuts())
}

func TestPublishExistingRepository(t *testing.T) {
	p, _, repos, cleanup := setup(t, 0, 0)
	defer cleanup()
	repos.existing["retail-store-sample-cart"] = true
	img, _ := randomImage(t)

	_, err := p.Publish(context.Background(), cart, img, "9f3c2ab")
	require.NoError(t, err)
	assert.Empty(t, repos.created)
}

func TestPublishRetriesThrottledRepositoryCheck(t *testing.T) {
	p, reg, repos, cleanup := setup(t, 0, 0)
	defer cleanup()
	repos.existsErrs = []error{awserr.New("ThrottlingException", "Rate exceeded", nil)}
	img, digest := randomImage(t)

	loc, err := p.Publish(context.Background(), cart, img, "9f3c2ab")
	require.NoError(t, err)
	assert.Equal(t, digest.String(), loc.Digest)
	assert.Equal(t, 2, repos.existsCalls)
	assert.Equal(t, []string{"retail-store-sample-cart"}, repos.created)
	assert.Equal(t, 2, reg.manifestPuts())
}

func TestPublishGivesUpOnThrottledRepositoryCheck(t *testing.T) {
	p, reg, repos, cleanup := setup(t, 0, 0)
	defer cleanup()
	throttled := awserr.New("ThrottlingException", "Rate exceeded", nil)
	repos.existsErrs = []error{throttled, throttled, throttled}
	img, _ := randomImage(t)

	_, err := p.Publish(context.Background(), cart, img, "9f3c2ab")
	require.Error(t, err)
	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.True(t, perr.Transient)
	assert.Equal(t, 0, perr.Attempts)
	assert.Contains(t, perr.Op, "ensuring repository")
	assert.Equal(t, 3, repos.existsCalls)
	assert.Equal(t, 0, reg.manifestPuts())
}
