/*
PURPOSE:
  Defines the configuration structure and loading logic for Cache Bench.
  Adheres to "Config IS Code" philosophy: the defaults alone reproduce the
  three demo suites, only endpoints and keys have to be supplied.

REQUIREMENTS:
  User-specified:
  - Two accounts (with and without the integrated cache), one database,
    one container, one partition key value.
  - Suites of descriptors: performance, item-cache, query-cache.

  Implementation-discovered:
  - Needs to support YAML parsing.
  - Keys must not have to live in files: CACHE_BENCH_<ACCOUNT>_ENDPOINT and
    CACHE_BENCH_<ACCOUNT>_KEY override them.
  - Descriptors on the same account share one store client.

ARCHITECTURE INTEGRATION:
  - Used by: internal/cli
  - Produces: model.Descriptor, engine.Workload, engine.IngestOptions
  - Dependencies: gopkg.in/yaml.v3

ERROR HANDLING:
  - Returns explicit error if config file is invalid.
  - Missing default files are not an error (defaults are used).
  - Validate() reports every problem at once (go-multierror).

IMPLEMENTATION RULES:
  - Config struct tags should support yaml.
  - Endpoints are not validated here so offline commands work without them.

USAGE:
  cfg, err := config.Load("cache_bench.yaml")
  ds, err := cfg.Descriptors("performance", cosmos.Open)

SELF-HEALING INSTRUCTIONS:
  - If new fields are needed, add to Config struct and update DefaultConfig().

RELATED FILES:
  - internal/cli/root.go
  - cache_bench.example.yaml

MAINTENANCE:
  - Update when adding new tuning parameters.
*/

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/daryltucker/cache-bench/internal/engine"
	"github.com/daryltucker/cache-bench/internal/model"
	"github.com/daryltucker/cache-bench/internal/store"
)

const (
	AccountRegular   = "regular"
	AccountDedicated = "dedicated"

	SuitePerformance = "performance"
	SuiteItemCache   = "item-cache"
	SuiteQueryCache  = "query-cache"

	envPrefix = "CACHE_BENCH_"
)

// DefaultFiles are tried in order when no --config is given.
var DefaultFiles = []string{"cache_bench.yaml", "cache-bench.yaml", "cache_bench.conf"}

// Account is one store account.
type Account struct {
	Endpoint string `yaml:"endpoint"`
	Key      string `yaml:"key"`
}

// IngestConfig controls the one-time load into a new container.
type IngestConfig struct {
	Items         int `yaml:"items"`
	MaxRPS        int `yaml:"max_rps"`
	ProgressEvery int `yaml:"progress_every"`
}

// WorkloadConfig sizes the sequential benchmarks.
type WorkloadConfig struct {
	WriteBatchSize  int    `yaml:"write_batch_size"`
	PointReadCount  int    `yaml:"point_read_count"`
	QueryIterations int    `yaml:"query_iterations"`
	QueryText       string `yaml:"query_text"`
	WarmUp          bool   `yaml:"warm_up"`
}

// DescriptorSpec is the file form of one benchmark.
type DescriptorSpec struct {
	Kind        string `yaml:"kind"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Account     string `yaml:"account"`
	// Consistency defaults to eventual.
	Consistency string `yaml:"consistency,omitempty"`
}

// Config represents the full configuration for Cache Bench.
type Config struct {
	Accounts          map[string]Account          `yaml:"accounts"`
	DatabaseID        string                      `yaml:"database_id"`
	ContainerID       string                      `yaml:"container_id"`
	PartitionKeyPath  string                      `yaml:"partition_key_path"`
	PartitionKeyValue string                      `yaml:"partition_key_value"`
	Throughput        int32                       `yaml:"throughput"`
	Ingest            IngestConfig                `yaml:"ingest"`
	Workload          WorkloadConfig              `yaml:"workload"`
	OutputDir         string                      `yaml:"output_dir"`
	OutputFile        string                      `yaml:"output_file"`
	Suites            map[string][]DescriptorSpec `yaml:"suites"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Accounts: map[string]Account{
			AccountRegular:   {},
			AccountDedicated: {},
		},
		DatabaseID:        "IntegratedCacheDemo",
		ContainerID:       "Customers",
		PartitionKeyPath:  "/myPartitionKey",
		PartitionKeyValue: "cache-bench",
		Throughput:        engine.DefaultThroughput,
		Ingest: IngestConfig{
			Items:         engine.DefaultIngestItems,
			ProgressEvery: engine.DefaultProgressEvery,
		},
		Workload: WorkloadConfig{
			WriteBatchSize:  engine.DefaultWriteBatchSize,
			PointReadCount:  engine.DefaultPointReadCount,
			QueryIterations: engine.DefaultQueryIterations,
			QueryText:       engine.DefaultQueryText,
			WarmUp:          true,
		},
		OutputDir:  ".",
		OutputFile: "cache_bench_results.csv",
		Suites:     defaultSuites(),
	}
}

func defaultSuites() map[string][]DescriptorSpec {
	return map[string][]DescriptorSpec{
		SuitePerformance: {
			{Kind: "write", Name: "dedicated gateway", Description: "Write sample items", Account: AccountDedicated},
			{Kind: "point-read", Name: "account without integrated cache", Description: "Do 100 test point reads without caching", Account: AccountRegular},
			{Kind: "point-read", Name: "account with integrated cache", Description: "Do 100 test point reads with caching", Account: AccountDedicated},
			{Kind: "query", Name: "account without integrated cache", Description: "Do 100 test queries without caching", Account: AccountRegular},
			{Kind: "query", Name: "account with integrated cache", Description: "Do 100 test queries with caching", Account: AccountDedicated},
		},
		SuiteItemCache: {
			{Kind: "custom-write", Name: "Custom writes", Description: "Perform writes to an account with an item cache", Account: AccountDedicated},
			{Kind: "custom-point-read", Name: "Custom point reads", Description: "Perform point reads on an account with an item cache", Account: AccountDedicated},
		},
		SuiteQueryCache: {
			{Kind: "custom-write", Name: "Custom writes", Description: "Perform writes to an account with a query cache", Account: AccountDedicated},
			{Kind: "custom-query", Name: "Custom queries", Description: "Perform queries on an account with a query cache", Account: AccountDedicated},
		},
	}
}

// Load reads configuration from a file.
// If path is specified, it attempts to load that file.
// If path is empty, it searches DefaultFiles in order.
// If no file found, returns default config.
// Environment overrides are applied in every case.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	} else {
		for _, name := range DefaultFiles {
			data, err = os.ReadFile(name)
			if err == nil {
				path = name
				break
			}
		}
	}

	if path != "" {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// EnvName returns the variable overriding field ("ENDPOINT" or "KEY") of account.
func EnvName(account, field string) string {
	norm := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_", " ", "_").Replace(account))
	return envPrefix + norm + "_" + field
}

// ApplyEnv overrides account endpoints and keys from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for name, acct := range c.Accounts {
		if v, ok := lookup(EnvName(name, "ENDPOINT")); ok && v != "" {
			acct.Endpoint = v
		}
		if v, ok := lookup(EnvName(name, "KEY")); ok && v != "" {
			acct.Key = v
		}
		c.Accounts[name] = acct
	}
}

// SuiteNames returns the configured suites sorted by name.
func (c *Config) SuiteNames() []string {
	names := make([]string, 0, len(c.Suites))
	for name := range c.Suites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks everything that does not need network access.
func (c *Config) Validate() error {
	var result *multierror.Error
	required := map[string]string{
		"database_id":         c.DatabaseID,
		"container_id":        c.ContainerID,
		"partition_key_path":  c.PartitionKeyPath,
		"partition_key_value": c.PartitionKeyValue,
	}
	for _, field := range []string{"database_id", "container_id", "partition_key_path", "partition_key_value"} {
		if strings.TrimSpace(required[field]) == "" {
			result = multierror.Append(result, fmt.Errorf("%s must be set", field))
		}
	}
	if c.PartitionKeyPath != "" && !strings.HasPrefix(c.PartitionKeyPath, "/") {
		result = multierror.Append(result, fmt.Errorf("partition_key_path %q must start with /", c.PartitionKeyPath))
	}
	if c.Throughput < 400 {
		result = multierror.Append(result, fmt.Errorf("throughput %d is below the 400 RU/s minimum", c.Throughput))
	}
	if c.Ingest.Items < 0 || c.Ingest.MaxRPS < 0 || c.Ingest.ProgressEvery < 0 {
		result = multierror.Append(result, errors.New("ingest values must not be negative"))
	}
	if c.Workload.WriteBatchSize <= 0 || c.Workload.PointReadCount <= 0 || c.Workload.QueryIterations <= 0 {
		result = multierror.Append(result, errors.New("workload sizes must be positive"))
	}
	if strings.TrimSpace(c.Workload.QueryText) == "" {
		result = multierror.Append(result, errors.New("workload.query_text must be set"))
	}
	if len(c.Suites) == 0 {
		result = multierror.Append(result, errors.New("no suites configured"))
	}

	for _, suite := range c.SuiteNames() {
		specs := c.Suites[suite]
		if len(specs) == 0 {
			result = multierror.Append(result, fmt.Errorf("suite %q has no benchmarks", suite))
		}
		for i, spec := range specs {
			where := fmt.Sprintf("suite %q benchmark %d", suite, i+1)
			if strings.TrimSpace(spec.Name) == "" {
				result = multierror.Append(result, fmt.Errorf("%s: name must be set", where))
			}
			if _, err := model.ParseKind(spec.Kind); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", where, err))
			}
			if _, err := model.ParseConsistency(spec.Consistency); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", where, err))
			}
			if _, ok := c.Accounts[spec.Account]; !ok {
				result = multierror.Append(result, fmt.Errorf("%s: unknown account %q", where, spec.Account))
			}
		}
	}
	return result.ErrorOrNil()
}

// Opener connects to one account.
type Opener func(conn model.Connection) (store.Client, error)

// Descriptors builds the descriptors of suite, opening one client per account.
func (c *Config) Descriptors(suite string, open Opener) ([]*model.Descriptor, error) {
	specs, ok := c.Suites[suite]
	if !ok {
		return nil, fmt.Errorf("unknown suite %q (have %s)", suite, strings.Join(c.SuiteNames(), ", "))
	}

	clients := map[string]store.Client{}
	descriptors := make([]*model.Descriptor, 0, len(specs))
	for _, spec := range specs {
		kind, err := model.ParseKind(spec.Kind)
		if err != nil {
			return nil, err
		}
		consistency, err := model.ParseConsistency(spec.Consistency)
		if err != nil {
			return nil, err
		}
		acct, ok := c.Accounts[spec.Account]
		if !ok {
			return nil, fmt.Errorf("benchmark %q: unknown account %q", spec.Name, spec.Account)
		}
		conn := model.Connection{Account: spec.Account, Endpoint: acct.Endpoint, Key: acct.Key}

		client, ok := clients[spec.Account]
		if !ok {
			client, err = open(conn)
			if err != nil {
				return nil, fmt.Errorf("connecting to account %q: %w", spec.Account, err)
			}
			clients[spec.Account] = client
		}

		descriptors = append(descriptors, &model.Descriptor{
			Kind:               kind,
			Name:               spec.Name,
			Description:        spec.Description,
			Connection:         conn,
			DatabaseID:         c.DatabaseID,
			ContainerID:        c.ContainerID,
			PartitionKeyPath:   c.PartitionKeyPath,
			PartitionKeyValue:  c.PartitionKeyValue,
			RequestConsistency: consistency,
			Client:             client,
		})
	}
	return descriptors, nil
}

// EngineWorkload converts the workload section.
func (c *Config) EngineWorkload() engine.Workload {
	return engine.Workload{
		WriteBatchSize:  c.Workload.WriteBatchSize,
		PointReadCount:  c.Workload.PointReadCount,
		QueryIterations: c.Workload.QueryIterations,
		QueryText:       c.Workload.QueryText,
		WarmUp:          c.Workload.WarmUp,
	}
}

// EngineIngest converts the ingest section.
func (c *Config) EngineIngest() engine.IngestOptions {
	return engine.IngestOptions{
		Items:         c.Ingest.Items,
		MaxRPS:        c.Ingest.MaxRPS,
		ProgressEvery: c.Ingest.ProgressEvery,
	}
}
