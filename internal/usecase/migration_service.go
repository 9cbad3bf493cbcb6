package usecase

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"crypto-keystore/internal/domain"

	"gorm.io/gorm"
)

// MigrationRepository はマイグレーション履歴を管理するリポジトリのインターフェース。
type MigrationRepository interface {
	IsVersionControlled(ctx context.Context) (bool, error)
	EnableVersionControl(ctx context.Context) error
	FindAllApplied(ctx context.Context) ([]*domain.Migration, error)
	RecordMigration(ctx context.Context, version string) error
	IsMigrationApplied(ctx context.Context, version string) (bool, error)
}

// MigrationService はスキーママイグレーションの適用を提供する。
type MigrationService struct {
	repo       MigrationRepository
	db         *gorm.DB
	migrations fs.FS
}

// NewMigrationService は新しいMigrationServiceを生成する。
// migrations には {version}_{name}.sql 形式のファイルを直下に持つFSを渡す。
func NewMigrationService(repo MigrationRepository, db *gorm.DB, migrations fs.FS) *MigrationService {
	return &MigrationService{
		repo:       repo,
		db:         db,
		migrations: migrations,
	}
}

// scanMigrationFiles はマイグレーションFSから.sqlファイルをスキャンする。
func (s *MigrationService) scanMigrationFiles() ([]*domain.Migration, error) {
	entries, err := fs.ReadDir(s.migrations, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	var migrations []*domain.Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseMigrationFileName(entry.Name())
		if err != nil {
			return nil, err
		}

		migrations = append(migrations, &domain.Migration{
			Version:  version,
			Name:     name,
			FilePath: entry.Name(),
			Status:   domain.MigrationStatusPending,
		})
	}

	// バージョン順にソート
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// parseMigrationFileName はファイル名からバージョンと名前を抽出する。
// ファイル名のフォーマット: {version}_{name}.sql (例: 001_create_key_info.sql)
func parseMigrationFileName(filename string) (version, name string, err error) {
	nameWithoutExt := strings.TrimSuffix(path.Base(filename), ".sql")

	parts := strings.SplitN(nameWithoutExt, "_", 2)
	if len(parts) < 2 || parts[0] == "" {
		return "", "", fmt.Errorf("%w: %s (expected format: {version}_{name}.sql)", domain.ErrInvalidMigrationFile, filename)
	}

	return parts[0], parts[1], nil
}

// Latest は最新のマイグレーションバージョンを返す。マイグレーションがない場合は空文字列。
func (s *MigrationService) Latest() (string, error) {
	all, err := s.scanMigrationFiles()
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return domain.BaseRevision, nil
	}
	return all[len(all)-1].Version, nil
}

// VersionControl はスキーマをバージョン管理下に置き、target以下のバージョンを適用済みとして記録する。
// 既にバージョン管理下にある場合も冪等に動作する。
func (s *MigrationService) VersionControl(ctx context.Context, target string) error {
	if err := s.repo.EnableVersionControl(ctx); err != nil {
		return fmt.Errorf("enabling version control: %w", err)
	}
	if target == domain.BaseRevision {
		return nil
	}

	all, err := s.scanMigrationFiles()
	if err != nil {
		return err
	}
	for _, migration := range all {
		if migration.Version > target {
			break
		}
		applied, err := s.repo.IsMigrationApplied(ctx, migration.Version)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if applied {
			continue
		}
		if err := s.repo.RecordMigration(ctx, migration.Version); err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
	}
	return nil
}

// Upgrade は未適用マイグレーションのうちtarget以下のものを番号順に実行する。
// targetが空の場合は最新まで適用する。適用した件数を返す。
// バージョン管理下にない場合は domain.ErrNotVersionControlled を返す。
func (s *MigrationService) Upgrade(ctx context.Context, target string) (int, error) {
	controlled, err := s.repo.IsVersionControlled(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to check version control: %w", err)
	}
	if !controlled {
		return 0, domain.ErrNotVersionControlled
	}

	allMigrations, err := s.scanMigrationFiles()
	if err != nil {
		slog.ErrorContext(ctx, "failed to scan migration files",
			"operation", "upgrade",
			"error", err,
		)
		return 0, err
	}

	// 未適用マイグレーションをフィルタリング
	var pendingMigrations []*domain.Migration
	for _, migration := range allMigrations {
		if target != "" && migration.Version > target {
			break
		}
		applied, err := s.repo.IsMigrationApplied(ctx, migration.Version)
		if err != nil {
			slog.ErrorContext(ctx, "failed to check migration status",
				"operation", "upgrade",
				"version", migration.Version,
				"error", err,
			)
			return 0, fmt.Errorf("failed to check migration status: %w", err)
		}
		if !applied {
			pendingMigrations = append(pendingMigrations, migration)
		}
	}

	appliedCount := 0
	for _, migration := range pendingMigrations {
		if err := s.applyMigration(ctx, migration); err != nil {
			slog.ErrorContext(ctx, "failed to apply migration",
				"operation", "upgrade",
				"version", migration.Version,
				"error", err,
			)
			return appliedCount, fmt.Errorf("%w: version %s: %v", domain.ErrMigrationFailed, migration.Version, err)
		}
		slog.InfoContext(ctx, "migration applied",
			"operation", "upgrade",
			"version", migration.Version,
			"name", migration.Name,
		)
		appliedCount++
	}

	return appliedCount, nil
}

// applyMigration は単一のマイグレーションを実行する。
func (s *MigrationService) applyMigration(ctx context.Context, migration *domain.Migration) error {
	sqlBytes, err := fs.ReadFile(s.migrations, migration.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	// トランザクション内で実行（MySQLのDDLは暗黙コミットされる）
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, stmt := range splitStatements(string(sqlBytes)) {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to execute migration SQL: %w", err)
			}
		}

		// 履歴を記録（トランザクション内で実行するため、同じtxを使用）
		model := struct {
			Version   string    `gorm:"column:version;primaryKey;type:varchar(14)"`
			AppliedAt time.Time `gorm:"column:applied_at"`
		}{
			Version:   migration.Version,
			AppliedAt: time.Now(),
		}
		if err := tx.Table("schema_migrations").Create(&model).Error; err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}

		return nil
	})
}

// splitStatements はSQLファイルを文単位に分割する。
// 行末の ; を文の区切りとみなし、-- で始まるコメント行は除外する。
func splitStatements(sql string) []string {
	var (
		stmts []string
		buf   strings.Builder
	)
	scanner := bufio.NewScanner(strings.NewReader(sql))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "--") {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
		if strings.HasSuffix(line, ";") {
			stmts = append(stmts, buf.String())
			buf.Reset()
		}
	}
	if rest := strings.TrimSpace(buf.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}

// GetMigrationStatus は現在のマイグレーション状況を取得する。
func (s *MigrationService) GetMigrationStatus(ctx context.Context) ([]*domain.Migration, error) {
	allMigrations, err := s.scanMigrationFiles()
	if err != nil {
		return nil, err
	}

	controlled, err := s.repo.IsVersionControlled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check version control: %w", err)
	}
	if !controlled {
		return allMigrations, nil
	}

	appliedMigrations, err := s.repo.FindAllApplied(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch applied migrations",
			"operation", "get_migration_status",
			"error", err,
		)
		return nil, fmt.Errorf("failed to fetch applied migrations: %w", err)
	}

	appliedMap := make(map[string]*domain.Migration)
	for _, migration := range appliedMigrations {
		appliedMap[migration.Version] = migration
	}

	for _, migration := range allMigrations {
		if applied, exists := appliedMap[migration.Version]; exists {
			migration.Status = domain.MigrationStatusApplied
			migration.AppliedAt = applied.AppliedAt
		}
	}

	return allMigrations, nil
}
