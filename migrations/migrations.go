// Package migrations は鍵ストアのスキーママイグレーションSQLを埋め込みで提供する。
//
// ディレクトリはgormのダイアレクト名（sqlite, mysql, postgres）ごとに分かれ、
// ファイル名は {version}_{name}.sql の形式とする。
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed sqlite/*.sql mysql/*.sql postgres/*.sql
var files embed.FS

// ForDialect は指定ダイアレクトのマイグレーションファイル群を返す。
func ForDialect(dialect string) (fs.FS, error) {
	switch dialect {
	case "sqlite", "mysql", "postgres":
		return fs.Sub(files, dialect)
	default:
		return nil, fmt.Errorf("no migrations for dialect %q", dialect)
	}
}
