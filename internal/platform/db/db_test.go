package db

import (
	"context"
	"strings"
	"testing"
)

func TestOpen_RequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), Options{DSN: "  "}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOpen_InvalidDSN(t *testing.T) {
	_, err := Open(context.Background(), Options{DSN: "postgres://%zz"})
	if err == nil {
		t.Fatal("expected parse error for malformed dsn")
	}
	if !strings.Contains(err.Error(), "parse DATABASE_URL") {
		t.Fatalf("expected wrapped parse error, got %v", err)
	}
}
