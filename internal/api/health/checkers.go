package health

import (
	"context"
	"fmt"
	"os"
)

// Pinger interface for databases that support ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StorageChecker checks database connectivity.
type StorageChecker struct {
	pinger Pinger
}

// NewStorageChecker creates a new storage health checker.
func NewStorageChecker(p Pinger) *StorageChecker {
	return &StorageChecker{pinger: p}
}

// Name returns the checker name.
func (c *StorageChecker) Name() string {
	return "sqlite"
}

// Check verifies the database is accessible.
func (c *StorageChecker) Check(ctx context.Context) error {
	if c.pinger == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.pinger.Ping(ctx)
}

// RulesFileChecker checks that the alert rules file is still readable.
type RulesFileChecker struct {
	path string
}

// NewRulesFileChecker creates a checker for a rules file.
func NewRulesFileChecker(path string) *RulesFileChecker {
	return &RulesFileChecker{path: path}
}

// Name returns the checker name.
func (c *RulesFileChecker) Name() string {
	return "rules_file"
}

// Check verifies the rules file exists and is a regular file.
func (c *RulesFileChecker) Check(ctx context.Context) error {
	info, err := os.Stat(c.path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", c.path)
	}
	return nil
}
