package migrations

import "embed"

// Files 暴露 kv_entries 与 receipts 两张表的 SQL 迁移文件，按版本号顺序执行。
//
//go:embed *.sql
var Files embed.FS
