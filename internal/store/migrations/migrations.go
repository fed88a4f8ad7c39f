// Package migrations 内嵌的 goose SQL 迁移。
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
