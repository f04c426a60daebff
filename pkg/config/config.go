// Package config holds the settings of a pipeline run. Values come
// from flags, from PIPELINE_* environment variables, and from an
// optional config file, in that order of precedence.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "PIPELINE"
	ConfigVersion = "v1"

	LogStoreNone = "none"
	LogStoreDir  = "dir"
	LogStoreS3   = "s3"
)

type Config struct {
	// Only expected in a config file; when present it must be equal
	// to ConfigVersion.
	ConfigVersion string `mapstructure:"pipelineConfigVersion"`

	UnitsFile string `mapstructure:"unitsFile"`
	WorkDir   string `mapstructure:"workDir"`
	DryRun    bool   `mapstructure:"dryRun"`
	LogFormat string `mapstructure:"logFormat"`

	GitURL         string        `mapstructure:"gitUrl"`
	GitBranch      string        `mapstructure:"gitBranch"`
	GitUser        string        `mapstructure:"gitUser"`
	GitEmail       string        `mapstructure:"gitEmail"`
	GitSkipMessage string        `mapstructure:"gitSkipMessage"`
	GitTimeout     time.Duration `mapstructure:"gitTimeout"`
	CommitAttempts int           `mapstructure:"commitAttempts"`

	BuildTimeout time.Duration `mapstructure:"buildTimeout"`
	DockerBinary string        `mapstructure:"dockerBinary"`

	Registry                 string        `mapstructure:"registry"`
	RegistryRepositoryPrefix string        `mapstructure:"registryRepositoryPrefix"`
	RegistryECR              bool          `mapstructure:"registryEcr"`
	RegistryECRRegion        string        `mapstructure:"registryEcrRegion"`
	RegistryInsecure         bool          `mapstructure:"registryInsecure"`
	RegistryRPS              float64       `mapstructure:"registryRps"`
	RegistryBurst            int           `mapstructure:"registryBurst"`
	RegistryUsername         string        `mapstructure:"registryUsername"`
	RegistryPassword         string        `mapstructure:"registryPassword"`
	PublishAttempts          int           `mapstructure:"publishAttempts"`
	PublishBackoff           time.Duration `mapstructure:"publishBackoff"`

	LogStore     string `mapstructure:"logStore"`
	LogDir       string `mapstructure:"logDir"`
	LogBucket    string `mapstructure:"logBucket"`
	LogEndpoint  string `mapstructure:"logEndpoint"`
	LogRegion    string `mapstructure:"logRegion"`
	LogPrefix    string `mapstructure:"logPrefix"`
	LogInsecure  bool   `mapstructure:"logInsecure"`
	LogAccessKey string `mapstructure:"logAccessKey"`
	LogSecretKey string `mapstructure:"logSecretKey"`

	MetricsPushgateway string `mapstructure:"metricsPushgateway"`

	TerraformDir    string `mapstructure:"terraformDir"`
	TerraformBinary string `mapstructure:"terraformBinary"`
}

// secrets are only read from the environment, never from flags or
// the config file.
var secrets = []string{"RegistryUsername", "RegistryPassword", "LogAccessKey", "LogSecretKey"}

// DefineFlags defines the flags that can also be set in the
// environment or a config file, and binds them to v.
func DefineFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	var bindErr error
	bind := func(fieldName, flagName string) {
		if bindErr != nil {
			return
		}
		key, err := mappedName(fieldName)
		if err != nil {
			bindErr = err
			return
		}
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			bindErr = err
			return
		}
		bindErr = v.BindEnv(key, EnvVar(key))
	}

	defineString := func(fieldName, flagName, def, desc string) {
		fs.String(flagName, def, desc)
		bind(fieldName, flagName)
	}
	defineBool := func(fieldName, flagName string, def bool, desc string) {
		fs.Bool(flagName, def, desc)
		bind(fieldName, flagName)
	}
	defineDuration := func(fieldName, flagName string, def time.Duration, desc string) {
		fs.Duration(flagName, def, desc)
		bind(fieldName, flagName)
	}
	defineInt := func(fieldName, flagName string, def int, desc string) {
		fs.Int(flagName, def, desc)
		bind(fieldName, flagName)
	}
	defineFloat64 := func(fieldName, flagName string, def float64, desc string) {
		fs.Float64(flagName, def, desc)
		bind(fieldName, flagName)
	}

	defineString("UnitsFile", "units-file", ".pipeline.yaml", "path of the units file, relative to the work dir")
	defineString("WorkDir", "work-dir", ".", "the checked out repository")
	defineBool("DryRun", "dry-run", false, "build, but do not publish images or commit manifests")
	defineString("LogFormat", "log-format", "fmt", "change the log format (fmt or json)")

	defineString("GitURL", "git-url", "", "URL to push manifest commits to; defaults to the origin of the work dir")
	defineString("GitBranch", "git-branch", "", "branch to commit manifests to; defaults to the branch of the event")
	defineString("GitUser", "git-user", "pipeline", "username to use as git committer")
	defineString("GitEmail", "git-email", "pipeline@users.noreply.github.com", "email to use as git committer")
	defineString("GitSkipMessage", "git-skip-message", "[skip ci]", "marker added to manifest commits so they don't trigger another run")
	defineDuration("GitTimeout", "git-timeout", 20*time.Second, "duration after which git operations time out")
	defineInt("CommitAttempts", "commit-attempts", 3, "attempts at pushing the manifest commit before giving up")

	defineDuration("BuildTimeout", "build-timeout", 20*time.Minute, "duration after which a unit build is failed")
	defineString("DockerBinary", "docker-binary", "docker", "docker CLI to build with")

	defineString("Registry", "registry", "", "host of the image registry to publish to, e.g., 123456789012.dkr.ecr.us-east-1.amazonaws.com")
	defineString("RegistryRepositoryPrefix", "registry-repository-prefix", "", "prefix added to the repository name of every unit")
	defineBool("RegistryECR", "registry-ecr", false, "the registry is ECR: create repositories and get credentials through the AWS API; implied by an ECR host name")
	defineString("RegistryECRRegion", "registry-ecr-region", "", "AWS region of the ECR registry; taken from the host name if not given")
	defineBool("RegistryInsecure", "registry-insecure", false, "use plain HTTP to talk to the registry")
	defineFloat64("RegistryRPS", "registry-rps", 50, "maximum registry requests per second")
	defineInt("RegistryBurst", "registry-burst", 10, "maximum burst of registry requests")
	defineInt("PublishAttempts", "publish-attempts", 3, "attempts at publishing an image before giving up")
	defineDuration("PublishBackoff", "publish-backoff", 5*time.Second, "wait before the first publish retry; doubles after each")

	defineString("LogStore", "log-store", LogStoreNone, fmt.Sprintf("where to keep build logs (one of %s, %s, %s)", LogStoreNone, LogStoreDir, LogStoreS3))
	defineString("LogDir", "log-dir", "build-logs", "directory for build logs, with --log-store=dir")
	defineString("LogBucket", "log-bucket", "", "bucket for build logs, with --log-store=s3")
	defineString("LogEndpoint", "log-endpoint", "s3.amazonaws.com", "S3 endpoint for build logs")
	defineString("LogRegion", "log-region", "", "region of the build log bucket")
	defineString("LogPrefix", "log-prefix", "", "prefix for build log object names")
	defineBool("LogInsecure", "log-insecure", false, "use plain HTTP to talk to the build log endpoint")

	defineString("MetricsPushgateway", "metrics-pushgateway", "", "URL of a Prometheus Pushgateway to send run metrics to")

	defineString("TerraformDir", "terraform-dir", "terraform", "directory of the infrastructure configuration")
	defineString("TerraformBinary", "terraform-binary", "terraform", "terraform CLI to run")

	if bindErr != nil {
		return bindErr
	}
	for _, field := range secrets {
		key, err := mappedName(field)
		if err != nil {
			return err
		}
		if err := v.BindEnv(key, EnvVar(key)); err != nil {
			return err
		}
	}
	return nil
}

// mappedName returns the key the field is known by in viper. This
// parallels the logic in github.com/mitchellh/mapstructure, except
// that a field marked to be ignored is an error.
func mappedName(fieldName string) (string, error) {
	field, ok := reflect.TypeOf(Config{}).FieldByName(fieldName)
	if !ok {
		return "", fmt.Errorf("attempt to bind a flag to a field not present in config.Config, %q", fieldName)
	}
	name := strings.Split(field.Tag.Get("mapstructure"), ",")[0]
	switch name {
	case "-":
		return "", fmt.Errorf("attempt to bind a flag to a config field tagged as ignored, %q", fieldName)
	case "":
		return field.Name, nil
	}
	return name, nil
}

// EnvVar returns the environment variable for a config key, e.g.,
// PIPELINE_GIT_URL for gitUrl.
func EnvVar(key string) string {
	var b strings.Builder
	b.WriteString(EnvPrefix)
	b.WriteByte('_')
	runes := []rune(key)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && !unicode.IsUpper(runes[i-1]) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// Load reads the config file, if given, and returns the resulting
// configuration.
func Load(v *viper.Viper, file string) (Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %s", file)
		}
		if got := v.GetString("pipelineConfigVersion"); got != ConfigVersion {
			return Config{}, fmt.Errorf("config file is expected to include `pipelineConfigVersion: %s`", ConfigVersion)
		}
		for _, field := range secrets {
			key, _ := mappedName(field)
			if v.InConfig(key) {
				return Config{}, fmt.Errorf("%s must be given in the environment as %s, not in the config file", key, EnvVar(key))
			}
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	return c, c.Validate()
}

func (c Config) Validate() error {
	switch c.LogFormat {
	case "fmt", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	switch c.LogStore {
	case LogStoreNone, LogStoreDir:
	case LogStoreS3:
		if c.LogBucket == "" {
			return errors.New("--log-bucket is required with --log-store=s3")
		}
	default:
		return fmt.Errorf("unknown log store %q", c.LogStore)
	}
	if c.PublishAttempts < 1 || c.CommitAttempts < 1 {
		return errors.New("attempts must be at least 1")
	}
	if c.RegistryRPS <= 0 || c.RegistryBurst < 1 {
		return errors.New("registry rate limits must be positive")
	}
	return nil
}
