package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is one candidate origin of configuration values, looked up by key.
type Source interface {
	Name() string
	Lookup(key string) (string, bool)
}

type envSource struct{}

// EnvSource reads the process environment.
func EnvSource() Source { return envSource{} }

func (envSource) Name() string { return "env" }

func (envSource) Lookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// MapSource is a fixed set of values, mostly useful in tests.
type MapSource map[string]string

func (m MapSource) Name() string { return "map" }

func (m MapSource) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type fileSource struct {
	path   string
	values map[string]string
}

// FileSource loads a flat YAML document whose keys are the environment
// variable names, e.g. "SHOPIFY_API_KEY: abc".
func FileSource(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		values[strings.ToUpper(k)] = fmt.Sprint(v)
	}
	return &fileSource{path: path, values: values}, nil
}

func (f *fileSource) Name() string { return "file:" + f.path }

func (f *fileSource) Lookup(key string) (string, bool) {
	v, ok := f.values[key]
	return v, ok
}
