package database

import (
	"context"
	"strings"
	"testing"
)

func TestEnsureReportSchemaRejectsInvalidDimension(t *testing.T) {
	err := EnsureReportSchema(context.Background(), nil, 0)
	if err == nil {
		t.Fatal("expected error when dimension is not positive")
	}
}

func TestReportSchemaUsesDimension(t *testing.T) {
	stmts, err := reportSchema(768)
	if err != nil {
		t.Fatalf("schema: %v", err)
	}

	var found bool
	for _, stmt := range stmts {
		if strings.Contains(stmt, "report_chunks (") {
			found = strings.Contains(stmt, "VECTOR(768)")
		}
	}
	if !found {
		t.Fatal("expected report_chunks embedding column sized to 768")
	}
}
