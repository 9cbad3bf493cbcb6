package repository

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB はテスト用の一時ファイルSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "keystore.sqlite") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	sql := `
		CREATE TABLE key_info (
			account VARCHAR(42) NOT NULL,
			key_id INTEGER PRIMARY KEY AUTOINCREMENT,
			encryption_key TEXT
		);
		CREATE UNIQUE INDEX uk_key_info_account ON key_info (account);
	`
	if err := db.Exec(sql).Error; err != nil {
		t.Fatalf("failed to create key_info table: %v", err)
	}

	return db
}

func TestKeyRepository_InsertAccount(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	// 初回は作成される
	created, err := repo.InsertAccount(ctx, "acc1")
	if err != nil {
		t.Fatalf("InsertAccount failed: %v", err)
	}
	if !created {
		t.Error("expected created=true, got false")
	}

	// 同じアカウントは一意制約で無視される
	created, err = repo.InsertAccount(ctx, "acc1")
	if err != nil {
		t.Fatalf("InsertAccount failed: %v", err)
	}
	if created {
		t.Error("expected created=false for duplicate account, got true")
	}

	var count int64
	if err := db.Model(&KeyInfoModel{}).Where("account = ?", "acc1").Count(&count).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 record, got %d", count)
	}
}

func TestKeyRepository_FindByAccount(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	if err := db.Exec("INSERT INTO key_info (account) VALUES (?), (?)", "acc1", "acc2").Error; err != nil {
		t.Fatalf("failed to insert test data: %v", err)
	}

	record, err := repo.FindByAccount(ctx, "acc2")
	if err != nil {
		t.Fatalf("FindByAccount failed: %v", err)
	}
	if record == nil {
		t.Fatal("expected record, got nil")
	}
	if record.KeyID != 2 {
		t.Errorf("expected key_id=2, got %d", record.KeyID)
	}
	if record.HasKey() {
		t.Error("expected encryption_key to be unset")
	}

	// 存在しない場合
	record, err = repo.FindByAccount(ctx, "my_account")
	if err != nil {
		t.Fatalf("FindByAccount failed: %v", err)
	}
	if record != nil {
		t.Errorf("expected nil, got %+v", record)
	}
}

func TestKeyRepository_FindByKeyID(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	if err := db.Exec("INSERT INTO key_info (account, encryption_key) VALUES (?, ?)", "test_account", "test_key_string").Error; err != nil {
		t.Fatalf("failed to insert test data: %v", err)
	}

	record, err := repo.FindByKeyID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByKeyID failed: %v", err)
	}
	if record == nil {
		t.Fatal("expected record, got nil")
	}
	if record.Account != "test_account" {
		t.Errorf("expected account=test_account, got %s", record.Account)
	}
	if record.EncryptionKey == nil || *record.EncryptionKey != "test_key_string" {
		t.Errorf("expected encryption_key=test_key_string, got %v", record.EncryptionKey)
	}

	record, err = repo.FindByKeyID(ctx, 100)
	if err != nil {
		t.Fatalf("FindByKeyID failed: %v", err)
	}
	if record != nil {
		t.Errorf("expected nil, got %+v", record)
	}
}

func TestKeyRepository_SetEncryptionKeyIfNull(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	if _, err := repo.InsertAccount(ctx, "acc1"); err != nil {
		t.Fatalf("InsertAccount failed: %v", err)
	}

	// 未設定なら書き込める
	updated, err := repo.SetEncryptionKeyIfNull(ctx, 1, "first")
	if err != nil {
		t.Fatalf("SetEncryptionKeyIfNull failed: %v", err)
	}
	if !updated {
		t.Error("expected updated=true, got false")
	}

	// 2回目は既に設定済みのため書き込まれない
	updated, err = repo.SetEncryptionKeyIfNull(ctx, 1, "second")
	if err != nil {
		t.Fatalf("SetEncryptionKeyIfNull failed: %v", err)
	}
	if updated {
		t.Error("expected updated=false, got true")
	}

	record, err := repo.FindByKeyID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByKeyID failed: %v", err)
	}
	if *record.EncryptionKey != "first" {
		t.Errorf("expected encryption_key=first, got %s", *record.EncryptionKey)
	}
}

func TestKeyRepository_SetEncryptionKeyIfNull_EmptyString(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewKeyRepository(db)

	// 空文字列は未設定として扱われる
	if err := db.Exec("INSERT INTO key_info (account, encryption_key) VALUES (?, ?)", "acc1", "").Error; err != nil {
		t.Fatalf("failed to insert row: %v", err)
	}

	record, err := repo.FindByKeyID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByKeyID failed: %v", err)
	}
	if record.HasKey() {
		t.Fatal("expected empty encryption_key to be unset")
	}

	updated, err := repo.SetEncryptionKeyIfNull(ctx, 1, "first")
	if err != nil {
		t.Fatalf("SetEncryptionKeyIfNull failed: %v", err)
	}
	if !updated {
		t.Error("expected updated=true, got false")
	}

	record, err = repo.FindByKeyID(ctx, 1)
	if err != nil {
		t.Fatalf("FindByKeyID failed: %v", err)
	}
	if !record.HasKey() || *record.EncryptionKey != "first" {
		t.Errorf("expected encryption_key=first, got %v", record.EncryptionKey)
	}
}
