package commands

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/openfroyo/confeval/pkg/policy"
	"github.com/openfroyo/confeval/pkg/telemetry"
)

// policyEngine builds the policy engine, or returns nil when no policies
// are configured.
func policyEngine(ctx context.Context, cfg *Config, logger *telemetry.Logger) (*policy.Engine, error) {
	if len(cfg.Policy) == 0 && !cfg.Builtins {
		return nil, nil
	}

	engine := policy.NewEngine(logger)
	if cfg.Builtins {
		if err := engine.EnableBuiltins(ctx); err != nil {
			return nil, err
		}
	}
	if len(cfg.Policy) > 0 {
		if err := engine.Load(ctx, cfg.Policy); err != nil {
			return nil, err
		}
	}

	if cfg.PolicyData != "" {
		docs, err := readPolicyData(cfg.PolicyData)
		if err != nil {
			return nil, err
		}
		for key, doc := range docs {
			if err := engine.SetData(ctx, key, doc); err != nil {
				return nil, err
			}
		}
	}
	return engine, nil
}

// readPolicyData reads a YAML (or JSON) document whose top-level keys become
// data.<key> in policies.
func readPolicyData(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy data: %w", err)
	}

	var docs map[string]interface{}
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse policy data %s: %w", path, err)
	}
	return docs, nil
}
