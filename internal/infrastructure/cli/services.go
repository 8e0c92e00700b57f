package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/ganttly/internal/infrastructure/wiring"
)

func loadServices(root string) (*wiring.AppServices, error) {
	services, err := wiring.BuildAppServices(root)
	if err != nil {
		return nil, fmt.Errorf("failed to build services: %w", err)
	}
	return services, nil
}

func getProjectRoot() (string, error) {
	if projectPath != "" {
		abs, err := filepath.Abs(projectPath)
		if err != nil {
			return "", fmt.Errorf("invalid project path %q: %w", projectPath, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return "", fmt.Errorf("project path %q: %w", abs, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("project path %q is not a directory", abs)
		}
		return abs, nil
	}
	return os.Getwd()
}

func loadServicesForCurrentDir() (*wiring.AppServices, error) {
	root, err := getProjectRoot()
	if err != nil {
		return nil, err
	}
	return loadServices(root)
}
