// Package config loads tool configuration from the user's config file,
// overlaying it on top of built-in defaults.
package config

import (
	"os"
	"time"

	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/wheelforge/wheelforge/internal/isolation"
	"github.com/wheelforge/wheelforge/internal/paths"
)

// Duration accepts Go duration strings ("30m", "1h15m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return pkgerrors.Errorf("invalid duration %q: %v", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

type Config struct {
	Containerd ContainerdConfig `yaml:"containerd"`
	Build      BuildConfig      `yaml:"build"`
}

type ContainerdConfig struct {
	Address   string `yaml:"address"`
	Namespace string `yaml:"namespace"`
}

// Defaults applied to build requests when the command line leaves them
// unset.
type BuildConfig struct {
	Python      string   `yaml:"python"`
	Output      string   `yaml:"output"`
	Timeout     Duration `yaml:"timeout"`
	MemoryBytes int64    `yaml:"memory_bytes"`
	CPUs        float64  `yaml:"cpus"`
	Network     bool     `yaml:"network"`
}

func Default() Config {
	return Config{
		Containerd: ContainerdConfig{
			Address:   isolation.DefaultContainerdAddress,
			Namespace: isolation.DefaultContainerdNamespace,
		},
		Build: BuildConfig{
			Python:  "3.12",
			Output:  "dist",
			Timeout: Duration(30 * time.Minute),
			Network: true,
		},
	}
}

// Reads configuration from path, falling back to the default config file
// location when path is empty. A missing file is not an error; the
// defaults apply unchanged.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = paths.ConfigFile()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, pkgerrors.Errorf("reading config %s: %v", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, pkgerrors.Errorf("parsing config %s: %v", path, err)
	}
	return cfg, nil
}
