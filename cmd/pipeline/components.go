package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/google/go-containerregistry/pkg/authn"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/Sagar7777521/retail-store-sample-app/pkg/config"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/detect"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/git"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/gitops"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/logstore"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/registry"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/registry/middleware"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/trigger"
	"github.com/Sagar7777521/retail-store-sample-app/pkg/unit"
)

func inWorkDir(cfg config.Config, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(cfg.WorkDir, path)
}

func loadUnits(cfg config.Config) (unit.Set, error) {
	cf, err := unit.LoadConfigFile(inWorkDir(cfg, cfg.UnitsFile))
	if err != nil {
		return unit.Set{}, err
	}
	units := cf.Units
	if prefix := cfg.RegistryRepositoryPrefix; prefix != "" {
		for i := range units {
			if !strings.HasPrefix(units[i].Repository, prefix) {
				units[i].Repository = prefix + units[i].Repository
			}
		}
	}
	return unit.NewSet(units...), nil
}

func skipFilter(cfg config.Config) trigger.Filter {
	return trigger.Filter{Marker: cfg.GitSkipMessage}
}

func newDetector(cfg config.Config, units unit.Set, logger log.Logger) *detect.Detector {
	return &detect.Detector{
		Repo:   git.NewRepo(cfg.WorkDir, git.Timeout(cfg.GitTimeout)),
		Units:  units,
		Filter: skipFilter(cfg),
		Logger: log.With(logger, "component", "detect"),
	}
}

func newLogStore(ctx context.Context, cfg config.Config) (logstore.Store, error) {
	switch cfg.LogStore {
	case config.LogStoreDir:
		return logstore.DirStore{Dir: inWorkDir(cfg, cfg.LogDir)}, nil
	case config.LogStoreS3:
		store, err := logstore.NewS3Store(s3Config(cfg))
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	return logstore.Discard, nil
}

func s3Config(cfg config.Config) logstore.S3Config {
	return logstore.S3Config{
		Endpoint:  cfg.LogEndpoint,
		Bucket:    cfg.LogBucket,
		Region:    cfg.LogRegion,
		Prefix:    cfg.LogPrefix,
		AccessKey: cfg.LogAccessKey,
		SecretKey: cfg.LogSecretKey,
		Insecure:  cfg.LogInsecure,
	}
}

func newPublisher(cfg config.Config, logger log.Logger) (*registry.Publisher, error) {
	host := cfg.Registry
	if host == "" {
		return nil, fmt.Errorf("no registry given; use --registry or %s", config.EnvVar("registry"))
	}
	logger = log.With(logger, "component", "registry")

	var (
		repos registry.Repositories = registry.ImplicitRepositories{}
		creds registry.Credentials  = registry.KeychainCredentials{Host: host, Keychain: authn.DefaultKeychain}
	)
	if cfg.RegistryUsername != "" {
		creds = registry.StaticCredentials(cfg.RegistryUsername, cfg.RegistryPassword)
	}
	account, region, isECR := registry.ParseECRHost(host)
	if isECR || cfg.RegistryECR {
		if cfg.RegistryECRRegion != "" {
			region = cfg.RegistryECRRegion
		}
		svc, err := registry.NewECRService(region)
		if err != nil {
			return nil, err
		}
		repos = &registry.ECRRepositories{Service: svc, RegistryID: account}
		creds = &registry.ECRCredentials{Service: svc, RegistryID: account}
		logger.Log("info", "using ECR", "account", account, "region", region)
	}

	return &registry.Publisher{
		Host:         host,
		Insecure:     cfg.RegistryInsecure,
		Repositories: registry.NewInstrumentedRepositories(repos),
		Client: registry.NewInstrumentedClient(&registry.RemoteClient{
			Credentials: creds,
			Limiters:    &middleware.RateLimiters{RPS: cfg.RegistryRPS, Burst: cfg.RegistryBurst, Logger: logger},
		}),
		Backoff: wait.Backoff{Duration: cfg.PublishBackoff, Factor: 2, Steps: cfg.PublishAttempts},
		Logger:  logger,
	}, nil
}

func newCommitter(ctx context.Context, cfg config.Config, logger log.Logger) (*gitops.Committer, error) {
	origin, originErr := git.NewRepo(cfg.WorkDir, git.Timeout(cfg.GitTimeout)).RemoteURL(ctx, "origin")
	url := cfg.GitURL
	switch {
	case url == "" && originErr != nil:
		return nil, originErr
	case url == "":
		url = origin
	}
	remote := git.Remote{URL: url}
	if originErr == nil && url != origin && !remote.SameRepo(origin) {
		logger.Log("warning", "manifest commits go to a different repository than the checked-out one",
			"remote", remote.SafeURL(), "origin", git.Remote{URL: origin}.SafeURL())
	}
	filter := skipFilter(cfg)
	return &gitops.Committer{
		Remote: remote,
		Config: git.Config{
			Branch:      cfg.GitBranch,
			UserName:    cfg.GitUser,
			UserEmail:   cfg.GitEmail,
			SkipMessage: filter.Suffix(),
		},
		Filter:   filter,
		Attempts: cfg.CommitAttempts,
		Logger:   log.With(logger, "component", "gitops"),
	}, nil
}
