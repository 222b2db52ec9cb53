// Package migrations embeds the SQL schema of the local state database.
//
// Importing it (usually blank) registers the files with the database
// package, so Migrate works without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/cloud4rpi-go/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
