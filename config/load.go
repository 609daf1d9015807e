package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "WXFSK_"

var SearchPaths = []string{"/etc/wxfsk/config.hcl", "~/.config/wxfsk/config.hcl", "./config.hcl"}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// FindConfigPath returns the first of paths that exists, or "".
func FindConfigPath(paths []string) string {
	for _, path := range paths {
		path = expandHome(path)
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("Found config file: %s", path)
			return path
		}
	}
	log.Info("Config file not found, using defaults")
	return ""
}

// envKey maps WXFSK_DEMOD_BIT_PERIOD to demod.bit_period: the first
// underscore after the prefix separates the section.
func envKey(k, v string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	key = strings.Replace(key, "_", ".", 1)
	log.Debugf("Found config env var: %s=%v", key, v)
	return key, v
}

// Load reads the HCL file at path (skipped when empty), then WXFSK_
// environment variables, over the defaults. The returned koanf instance holds
// only what was explicitly set.
func Load(path string) (Config, *koanf.Koanf, error) {
	k := koanf.New(".")
	conf := Default()

	if path != "" {
		if err := k.Load(file.Provider(expandHome(path)), hcl.Parser(true)); err != nil {
			return conf, k, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return conf, k, fmt.Errorf("read environment: %w", err)
	}

	if err := k.Unmarshal("", &conf); err != nil {
		return conf, k, fmt.Errorf("decode config: %w", err)
	}
	return conf, k, nil
}
