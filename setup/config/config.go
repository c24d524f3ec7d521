// Copyright 2024 The Hearth Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	jaegerconfig "github.com/uber/jaeger-client-go/config"
	jaegermetrics "github.com/uber/jaeger-lib/metrics"
	"gopkg.in/yaml.v2"
)

// Version is the current version of the config format.
// This will change whenever we make breaking changes to the config format.
const Version = 1

// Hearth contains all the config used by a Hearth process.
// Relative paths are resolved relative to the current working directory
type Hearth struct {
	// The version of the configuration file.
	// If the version in a file doesn't match the current Hearth config
	// version then we can give a clear error message telling the user
	// to update their config file to the current version.
	Version int `yaml:"version"`

	Global       Global       `yaml:"global"`
	TypingServer TypingServer `yaml:"typing_server"`
	Directory    Directory    `yaml:"directory"`

	// The config for tracing the Hearth servers.
	Tracing struct {
		// Set to true to enable tracer hooks. If false, no tracing is set up.
		Enabled bool `yaml:"enabled"`
		// The config for the jaeger opentracing reporter.
		Jaeger jaegerconfig.Configuration `yaml:"jaeger"`
	} `yaml:"tracing"`

	// The config for logging informations. Each hook will be added to logrus.
	Logging []LogrusHook `yaml:"logging"`

	// Any information derived from the configuration options for later use.
	Derived struct {
		// The absolute path the configuration was loaded relative to.
		BasePath string `yaml:"-"`
	} `yaml:"-"`
}

// A Path on the filesystem.
type Path string

// A DataSource for opening a backing store. Supported schemes are
// file: (SQLite), postgres:// (or a key/value DSN), redis:// and memory:.
type DataSource string

func (d DataSource) IsSQLite() bool {
	return strings.HasPrefix(string(d), "file:")
}

func (d DataSource) IsPostgres() bool {
	return !d.IsSQLite() && !d.IsRedis() && !d.IsMemory()
}

func (d DataSource) IsRedis() bool {
	return strings.HasPrefix(string(d), "redis://") || strings.HasPrefix(string(d), "rediss://")
}

func (d DataSource) IsMemory() bool {
	return d == "memory:"
}

// A Topic in a JetStream deployment.
type Topic string

// LogrusHook represents a single logrus hook. At this point, only parsing and
// verification of the proper values for type and level are done.
// Validity/integrity checks on the parameters are done when configuring logrus.
type LogrusHook struct {
	// The type of hook, currently only "file", "std" and "syslog" are supported.
	Type string `yaml:"type"`

	// The level of the logs to produce. Will output only this level and above.
	Level string `yaml:"level"`

	// The parameters for this hook.
	Params map[string]interface{} `yaml:"params"`
}

// ConfigErrors stores problems encountered when parsing a config file.
// It implements the error interface.
type ConfigErrors []string

// Load a yaml config file for a server run as a single process.
func Load(configPath string) (*Hearth, error) {
	configData, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	basePath, err := filepath.Abs(".")
	if err != nil {
		return nil, err
	}
	return loadConfig(basePath, configData)
}

func loadConfig(
	basePath string,
	configData []byte,
) (*Hearth, error) {
	var c Hearth
	c.Defaults(false)
	c.Derived.BasePath = basePath

	var err error
	if err = yaml.Unmarshal(configData, &c); err != nil {
		return nil, err
	}

	if err = c.check(); err != nil {
		return nil, err
	}

	if c.Global.JetStream.StoragePath != "" {
		c.Global.JetStream.StoragePath = Path(absPath(basePath, c.Global.JetStream.StoragePath))
	}

	return &c, nil
}

func (c *Hearth) Defaults(generate bool) {
	c.Version = Version
	c.Global.Defaults(generate)
	c.TypingServer.Defaults(generate)
	c.Directory.Defaults(generate)
	c.Logging = []LogrusHook{
		{
			Type:  "std",
			Level: "info",
		},
	}
	if generate {
		c.Tracing.Jaeger.ServiceName = "hearth"
	}
}

// Verify checks every section and collects all of the problems found.
func (c *Hearth) Verify(configErrs *ConfigErrors) {
	type verifiable interface {
		Verify(configErrs *ConfigErrors)
	}
	for _, section := range []verifiable{
		&c.Global, &c.TypingServer, &c.Directory,
	} {
		section.Verify(configErrs)
	}
	c.TypingServer.verifyDatabase(configErrs, &c.Global.DatabaseOptions)
	for i, hook := range c.Logging {
		if _, err := logrus.ParseLevel(hook.Level); err != nil {
			configErrs.Add(fmt.Sprintf("invalid value for config key \"logging[%d].level\": %q", i, hook.Level))
		}
		switch hook.Type {
		case "file", "std", "syslog":
		default:
			configErrs.Add(fmt.Sprintf("invalid value for config key \"logging[%d].type\": %q", i, hook.Type))
		}
	}
}

// check the version before anything else; a mismatch makes every other
// error meaningless.
func (c *Hearth) check() error {
	if c.Version != Version {
		return ConfigErrors([]string{fmt.Sprintf(
			"unknown config version %d, expected %d", c.Version, Version,
		)})
	}
	return nil
}

// Add appends an error to the list of errors in this configErrors.
// It is a wrapper to the builtin append and hides pointers from
// the client code.
// This method is safe to use with an uninitialized configErrors because
// if it is nil, it will be properly allocated.
func (errs *ConfigErrors) Add(str string) {
	*errs = append(*errs, str)
}

// Error returns a string detailing how many errors were contained within a
// configErrors type.
func (errs ConfigErrors) Error() string {
	if len(errs) == 1 {
		return errs[0]
	}
	return fmt.Sprintf(
		"%s (and %d other problems)", errs[0], len(errs)-1,
	)
}

// checkNotEmpty verifies the given value is not empty in the configuration.
// If it is, adds an error to the list.
func checkNotEmpty(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

// checkNotZero verifies the given value is not zero in the configuration.
// If it is, adds an error to the list.
func checkNotZero(configErrs *ConfigErrors, key string, value int64) {
	if value == 0 {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
	}
}

// checkPositive verifies the given value is positive (zero included)
// in the configuration. If it is not, adds an error to the list.
func checkPositive(configErrs *ConfigErrors, key string, value int64) {
	if value < 0 {
		configErrs.Add(fmt.Sprintf("invalid value for config key %q: %d", key, value))
	}
}

// checkURL verifies that the parameter is a valid URL
func checkURL(configErrs *ConfigErrors, key, value string) {
	if value == "" {
		configErrs.Add(fmt.Sprintf("missing config key %q", key))
		return
	}
	if _, err := HTTPAddress(value); err != nil {
		configErrs.Add(fmt.Sprintf("config key %q contains invalid URL (%s)", key, err.Error()))
	}
}

// absPath returns the absolute path for a given relative or absolute path.
func absPath(dir string, path Path) string {
	if filepath.IsAbs(string(path)) {
		// filepath.Join cleans the path so we should clean the absolute paths as well for consistency.
		return filepath.Clean(string(path))
	}
	return filepath.Join(dir, string(path))
}

// SetupTracing configures the opentracing using the supplied configuration.
func (c *Hearth) SetupTracing() (closer io.Closer, err error) {
	if !c.Tracing.Enabled {
		return io.NopCloser(bytes.NewReader([]byte{})), nil
	}
	return c.Tracing.Jaeger.InitGlobalTracer(
		"Hearth",
		jaegerconfig.Logger(logrusLogger{logrus.StandardLogger()}),
		jaegerconfig.Metrics(jaegermetrics.NullFactory),
	)
}

// logrusLogger is a small wrapper that implements jaeger.Logger using logrus.
type logrusLogger struct {
	l *logrus.Logger
}

func (l logrusLogger) Error(msg string) {
	l.l.Error(msg)
}

func (l logrusLogger) Infof(msg string, args ...interface{}) {
	l.l.Infof(msg, args...)
}
