package storage

import (
	"path/filepath"
	"testing"
)

func TestOpenCreatesDirectoryAndSchema(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "agent.db")

	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	if !db.Migrator().HasTable(&AgentState{}) {
		t.Fatal("expected agent_state table after migration")
	}

	record := AgentState{Key: "k", Value: "v"}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if record.ID == 0 {
		t.Fatal("expected auto-assigned id")
	}
}

func TestOpenMemoryDSN(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if !db.Migrator().HasTable(&AgentState{}) {
		t.Fatal("expected agent_state table after migration")
	}
}
