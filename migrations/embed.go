// Package migrations embeds SQL migration files into the binary, so the
// daemon can migrate its database without the SQL files being present on
// the filesystem.
package migrations

import (
	"embed"

	"github.com/helixpos/periph-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "." // files are at the root of the embedded FS
}
