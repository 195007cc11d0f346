// Package testutil provides shared helpers for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

// LoadTestEnv loads .env.test from the repository root so database-backed
// tests can run from any package directory. Missing files are not an error;
// CI provides the environment directly.
func LoadTestEnv(t *testing.T) {
	t.Helper()

	envFile := findEnvTestFile()
	if envFile == "" {
		return
	}

	if err := godotenv.Load(envFile); err != nil {
		t.Logf("Failed to load %s: %v", envFile, err)
	}
}

// findEnvTestFile walks up from the working directory looking for .env.test
func findEnvTestFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ".env.test")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
