package db

import (
	"context"
	"fmt"
	"net/http"

	migrate "github.com/rubenv/sql-migrate"

	"github.com/opsplane/opsplane-backend/db/migrations"
)

const MigrationsTableName = "opsplane_migrations"

// Migrate applies count migrations in the given direction (count <= 0 applies
// all) and returns the number applied.
func Migrate(dbURL string, dir migrate.MigrationDirection, count int) (int, error) {
	dbConnectionPool, err := OpenDBConnectionPool(dbURL)
	if err != nil {
		return 0, fmt.Errorf("opening connection pool for migrations: %w", err)
	}
	defer dbConnectionPool.Close()

	ms := migrate.MigrationSet{
		TableName: MigrationsTableName,
	}

	m := migrate.HttpFileSystemMigrationSource{FileSystem: http.FS(migrations.FS)}
	db, err := dbConnectionPool.SqlDB(context.Background())
	if err != nil {
		return 0, fmt.Errorf("fetching sql.DB: %w", err)
	}

	if count <= 0 {
		return ms.Exec(db, dbConnectionPool.DriverName(), m, dir)
	}
	return ms.ExecMax(db, dbConnectionPool.DriverName(), m, dir, count)
}
