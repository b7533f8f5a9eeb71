package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/taskmarket/configs"
)

var defaultPolicyFiles = []string{
	"vision.yaml",
	"audio.yaml",
}

func ensureDefaults(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read policy dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			return nil
		}
	}

	for _, file := range defaultPolicyFiles {
		content, err := configs.PolicyDefaults.ReadFile(filepath.Join("policies", file))
		if err != nil {
			return fmt.Errorf("read embedded default %q: %w", file, err)
		}
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("write default %q: %w", path, err)
		}
	}

	return nil
}
