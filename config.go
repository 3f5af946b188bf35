package unitpool

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the sharing and delegation settings of one container.
type Config struct {
	Name string `yaml:"name"`
	// Shared lists the name prefixes shared across the pool.
	Shared Prefixes `yaml:"shared"`
	// DelegateFirst asks the parent before the pool and the local repository.
	DelegateFirst bool `yaml:"delegateFirst"`
	// Filter lists prefixes that are always delegated first.
	Filter Prefixes `yaml:"filter"`
}

// Prefixes is a list of name prefixes. In YAML it is either a sequence or a
// single comma-separated string.
type Prefixes []string

func (p *Prefixes) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*p = ParsePrefixes(value.Value)
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*p = NewNameMatcher(items...).Prefixes()
		return nil
	default:
		return fmt.Errorf("prefixes: expected string or sequence at line %d", value.Line)
	}
}

// ParsePrefixes splits a comma-separated prefix list, dropping empty items.
func ParsePrefixes(s string) Prefixes {
	parts := strings.Split(s, ",")
	out := make(Prefixes, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DecodeConfig reads a YAML container config.
func DecodeConfig(r io.Reader) (Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// LoadConfig reads a YAML container config from path.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	defer f.Close()
	return DecodeConfig(f)
}

// PoolFile describes a whole pool: shared settings plus its containers.
type PoolFile struct {
	// Shared applies to every container that does not set its own.
	Shared Prefixes `yaml:"shared"`
	// System lists the names the host-level delegate provides.
	System     []string        `yaml:"system"`
	Containers []ContainerFile `yaml:"containers"`
}

// ContainerFile is one container of a PoolFile.
type ContainerFile struct {
	Config `yaml:",inline"`
	// Parent names another container of the file.
	Parent string `yaml:"parent"`
	// Units lists the names the container's repository provides.
	Units []string `yaml:"units"`
}

// LoadPoolFile reads and validates a YAML pool description.
func LoadPoolFile(path string) (PoolFile, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return PoolFile{}, fmt.Errorf("load pool file: %w", err)
	}
	var pf PoolFile
	if err := yaml.Unmarshal(payload, &pf); err != nil {
		return PoolFile{}, fmt.Errorf("decode pool file %s: %w", path, err)
	}
	if err := pf.Validate(); err != nil {
		return PoolFile{}, err
	}
	return pf, nil
}

// Validate checks container names are set and unique and parents exist.
func (pf PoolFile) Validate() error {
	seen := make(map[string]struct{}, len(pf.Containers))
	for i, c := range pf.Containers {
		if c.Name == "" {
			return fmt.Errorf("pool file: container #%d has no name", i)
		}
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("pool file: duplicate container %s", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	for _, c := range pf.Containers {
		if c.Parent == "" {
			continue
		}
		if _, ok := seen[c.Parent]; !ok {
			return fmt.Errorf("pool file: container %s has unknown parent %s", c.Name, c.Parent)
		}
		if c.Parent == c.Name {
			return fmt.Errorf("pool file: container %s is its own parent", c.Name)
		}
	}
	return nil
}
