package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Cluster describes one analysis target from the inventory file.
type Cluster struct {
	Name              string   `yaml:"-"`
	PrometheusURL     string   `yaml:"prometheus_url"`
	Environment       string   `yaml:"env"`
	Project           string   `yaml:"project"`
	ExcludeNamespaces []string `yaml:"exclude_namespaces,omitempty"`
	OwnerEmail        string   `yaml:"owner_email,omitempty"`
}

type clustersFile struct {
	Clusters map[string]Cluster `yaml:"clusters"`
}

// LoadClusters reads the cluster inventory file. Clusters are returned in
// name order so iteration is deterministic.
func LoadClusters(path string) ([]Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clusters file: %w", err)
	}

	var file clustersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse clusters file %s: %w", path, err)
	}
	if len(file.Clusters) == 0 {
		return nil, fmt.Errorf("clusters file %s defines no clusters", path)
	}

	names := make([]string, 0, len(file.Clusters))
	for name := range file.Clusters {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Cluster, 0, len(names))
	for _, name := range names {
		c := file.Clusters[name]
		c.Name = name
		if c.PrometheusURL == "" {
			return nil, fmt.Errorf("cluster %q: prometheus_url is required", name)
		}
		if c.Environment == "" {
			c.Environment = EnvNonprod
		}
		if c.Environment != EnvProd && c.Environment != EnvNonprod {
			return nil, fmt.Errorf("cluster %q: env must be %q or %q, got %q", name, EnvProd, EnvNonprod, c.Environment)
		}
		out = append(out, c)
	}
	return out, nil
}
