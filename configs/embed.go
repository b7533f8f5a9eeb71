package configs

import "embed"

// PolicyDefaults contains shipped default per-task-type policy YAML files.
//
//go:embed policies/*.yaml
var PolicyDefaults embed.FS
