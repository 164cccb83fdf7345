// Package migrations embeds the Gatekeeper schema into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/gatekeeper/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
