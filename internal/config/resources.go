package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed resources.yaml
var defaultResources []byte

// DefaultOwnerKey is the owner-reference column used by most collections.
const DefaultOwnerKey = "user_id"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Resource names a collection that may hold user-owned records and the field that
// identifies the owner.
type Resource struct {
	Collection string `yaml:"collection"`
	OwnerKey   string `yaml:"owner_key"`
}

type resourceFile struct {
	Version   int        `yaml:"version"`
	Resources []Resource `yaml:"resources"`
}

// DefaultResources returns the embedded, canonical resource list.
func DefaultResources() []Resource {
	res, err := ParseResources(defaultResources)
	if err != nil {
		panic(fmt.Sprintf("config: embedded resources.yaml is invalid: %v", err))
	}
	return res
}

// LoadResources reads a resource list from path, or the embedded default when path is empty.
func LoadResources(path string) ([]Resource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultResources(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources file: %w", err)
	}
	return ParseResources(data)
}

// ParseResources decodes and validates a YAML resource list. Missing owner keys default
// to user_id.
func ParseResources(data []byte) ([]Resource, error) {
	var file resourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse resources: %w", err)
	}
	if file.Version != 0 && file.Version != 1 {
		return nil, fmt.Errorf("unsupported resources version %d", file.Version)
	}
	if len(file.Resources) == 0 {
		return nil, errors.New("resources list is empty")
	}

	out := make([]Resource, 0, len(file.Resources))
	seen := make(map[string]struct{}, len(file.Resources))
	selfKeyed := 0
	for i, r := range file.Resources {
		r.Collection = strings.TrimSpace(r.Collection)
		r.OwnerKey = strings.TrimSpace(r.OwnerKey)
		if r.OwnerKey == "" {
			r.OwnerKey = DefaultOwnerKey
		}
		if !identPattern.MatchString(r.Collection) {
			return nil, fmt.Errorf("resources[%d]: invalid collection name %q", i, r.Collection)
		}
		if !identPattern.MatchString(r.OwnerKey) || strings.Contains(r.OwnerKey, ".") {
			return nil, fmt.Errorf("resources[%d]: invalid owner key %q", i, r.OwnerKey)
		}
		if _, dup := seen[r.Collection]; dup {
			return nil, fmt.Errorf("resources[%d]: duplicate collection %q", i, r.Collection)
		}
		seen[r.Collection] = struct{}{}
		if r.OwnerKey == "id" {
			selfKeyed++
		}
		out = append(out, r)
	}
	if selfKeyed > 1 {
		return nil, errors.New("only the profile collection may be keyed by its own id")
	}
	return out, nil
}
