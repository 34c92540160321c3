// Package platform implements the native health platform adapters.
// One concrete adapter per platform plus a null object for "capability
// absent"; the discriminator in detect.go picks exactly one at startup.
package platform

import (
	"context"
	"os/exec"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RealCommandRunner executes real system commands.
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete.
func (r *RealCommandRunner) Run(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Output executes a command and returns its stdout.
func (r *RealCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// BinaryLocator abstracts binary resolution for testing.
type BinaryLocator interface {
	LookPath(name string) (string, error)
}

// RealBinaryLocator resolves binaries via PATH.
type RealBinaryLocator struct{}

// LookPath finds a binary on PATH.
func (r *RealBinaryLocator) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
