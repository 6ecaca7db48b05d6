// Package testdocker gates container-backed tests on a reachable Docker daemon.
package testdocker

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
)

// Require skips the test in -short mode or when no healthy Docker provider is available.
func Require(tb testing.TB) {
	tb.Helper()
	if testing.Short() {
		tb.Skip("skipping container test in short mode")
	}
	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		tb.Skipf("docker unavailable: %v", err)
	}
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := provider.Health(ctx); err != nil {
		tb.Skipf("docker unhealthy: %v", err)
	}
}
