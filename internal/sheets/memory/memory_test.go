package memory

import (
	"context"
	"testing"

	"bilancio/internal/core"
	"bilancio/internal/sheets"
)

func TestStoreAppendRow(t *testing.T) {
	s := New()
	ref, err := s.AppendRow(context.Background(), sheets.Row{Description: "Pizza", Amount: core.Money{Cents: 1250}})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if ref != "mem:1" {
		t.Fatalf("unexpected ref %q", ref)
	}

	rows := s.Rows()
	rows[0].Description = "changed"
	if s.Rows()[0].Description != "Pizza" {
		t.Fatalf("Rows must return a copy")
	}
}
