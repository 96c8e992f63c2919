// Copyright 2025-2026 Astreus Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package config provides unified configuration loading for the engine:
defaults, YAML files and environment variable overrides, in that
precedence order.

Usage:

	cfg, err := config.NewLoader().
	    WithConfigPath("astreus.yaml").
	    WithEnvPrefix("ASTREUS").
	    Load()

Environment keys are derived from the yaml tags, uppercased and joined
with underscores: memory.max_entries becomes ASTREUS_MEMORY_MAX_ENTRIES.
*/
package config
