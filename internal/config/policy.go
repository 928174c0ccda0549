package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"tallerpos/backend/internal/domain"
)

const (
	defaultSaleVoidRoles    = "1,2,4,5"
	defaultServiceVoidRoles = "1,2"
)

// Policy holds the role allow-lists for the two void operations.
type Policy struct {
	SaleVoidRoles    domain.RoleSet
	ServiceVoidRoles domain.RoleSet
}

type policyFile struct {
	Void struct {
		Sale    []int `yaml:"sale"`
		Service []int `yaml:"service"`
	} `yaml:"void"`
}

// LoadPolicy resolves the void allow-lists. Precedence is env var, then the
// YAML policy file, then the built-in defaults.
func LoadPolicy(cfg Config) (Policy, error) {
	var file policyFile
	if cfg.PolicyFile != "" {
		data, err := os.ReadFile(cfg.PolicyFile)
		if err != nil {
			return Policy{}, fmt.Errorf("read policy file: %w", err)
		}
		if err := yaml.Unmarshal(data, &file); err != nil {
			return Policy{}, fmt.Errorf("parse policy file: %w", err)
		}
	}

	sale, err := resolveRoles(cfg.SaleVoidRoles, file.Void.Sale, defaultSaleVoidRoles)
	if err != nil {
		return Policy{}, fmt.Errorf("sale void roles: %w", err)
	}
	service, err := resolveRoles(cfg.ServiceVoidRoles, file.Void.Service, defaultServiceVoidRoles)
	if err != nil {
		return Policy{}, fmt.Errorf("service void roles: %w", err)
	}
	return Policy{SaleVoidRoles: sale, ServiceVoidRoles: service}, nil
}

func resolveRoles(env string, fromFile []int, fallback string) (domain.RoleSet, error) {
	if env != "" {
		return domain.ParseRoleSet(env)
	}
	if len(fromFile) > 0 {
		set := domain.RoleSet{}
		for _, rank := range fromFile {
			role, err := domain.ParseRole(rank)
			if err != nil {
				return nil, err
			}
			if !set.Contains(role) {
				set = append(set, role)
			}
		}
		return set, nil
	}
	return domain.ParseRoleSet(fallback)
}
