// Package testutil holds helpers for integration tests that need a real Postgres.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

const envTestFile = ".env.test"

// LoadTestEnv points DATABASE_URL at the test database. A DATABASE_URL
// already in the environment (as in CI) wins over TEST_DATABASE_URL from
// .env.test.
func LoadTestEnv(t *testing.T) {
	t.Helper()

	if os.Getenv("DATABASE_URL") != "" {
		return
	}

	envPath := findUp(envTestFile, 5)
	if envPath == "" {
		t.Logf("%s not found, using environment as-is", envTestFile)
		return
	}

	envMap, err := godotenv.Read(envPath)
	if err != nil {
		t.Logf("failed to read %s: %v", envPath, err)
		return
	}

	if url := envMap["TEST_DATABASE_URL"]; url != "" {
		t.Setenv("DATABASE_URL", url)
	}
}

// RequireDatabase loads the test environment and skips the test when no
// database is configured.
func RequireDatabase(t *testing.T) string {
	t.Helper()
	LoadTestEnv(t)

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}
	return url
}

// findUp looks for name in the working directory and up to levels parents.
func findUp(name string, levels int) string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for range levels + 1 {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}
