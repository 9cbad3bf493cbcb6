package repository

import (
	"context"
	"testing"
)

func TestMigrationRepository_VersionControl(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db)

	controlled, err := repo.IsVersionControlled(ctx)
	if err != nil {
		t.Fatalf("IsVersionControlled failed: %v", err)
	}
	if controlled {
		t.Fatal("expected fresh database not to be version controlled")
	}

	// 2回呼んでもエラーにならない
	for i := 0; i < 2; i++ {
		if err := repo.EnableVersionControl(ctx); err != nil {
			t.Fatalf("EnableVersionControl failed: %v", err)
		}
	}

	controlled, err = repo.IsVersionControlled(ctx)
	if err != nil {
		t.Fatalf("IsVersionControlled failed: %v", err)
	}
	if !controlled {
		t.Error("expected database to be version controlled")
	}
}

func TestMigrationRepository_RecordMigration(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewMigrationRepository(db)

	if err := repo.EnableVersionControl(ctx); err != nil {
		t.Fatalf("EnableVersionControl failed: %v", err)
	}
	for _, v := range []string{"002", "001"} {
		if err := repo.RecordMigration(ctx, v); err != nil {
			t.Fatalf("RecordMigration(%s) failed: %v", v, err)
		}
	}

	applied, err := repo.IsMigrationApplied(ctx, "001")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if !applied {
		t.Error("expected 001 to be applied")
	}

	applied, err = repo.IsMigrationApplied(ctx, "003")
	if err != nil {
		t.Fatalf("IsMigrationApplied failed: %v", err)
	}
	if applied {
		t.Error("expected 003 not to be applied")
	}

	migrations, err := repo.FindAllApplied(ctx)
	if err != nil {
		t.Fatalf("FindAllApplied failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != "001" || migrations[1].Version != "002" {
		t.Errorf("expected versions in order, got %s, %s", migrations[0].Version, migrations[1].Version)
	}
}
