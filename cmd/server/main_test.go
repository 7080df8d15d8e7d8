package main

import (
	"strings"
	"testing"

	"tokosakti/backend/internal/config"
)

func TestValidateSecurityConfig(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: ""}); err == nil {
		t.Fatalf("expected empty secret to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: "too-short"}); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: strings.Repeat("s", 32)}); err != nil {
		t.Fatalf("expected 32-char secret to pass, got %v", err)
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	log := newLogger("not-a-level")
	if log.GetLevel().String() != "info" {
		t.Fatalf("level = %s, want info", log.GetLevel())
	}
	log = newLogger("warning")
	if log.GetLevel().String() != "warning" {
		t.Fatalf("level = %s, want warning", log.GetLevel())
	}
}
