package database

import (
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func SetupDatabase(
	dbBackend string,
	dsn string,
	debug bool,
) *gorm.DB {
	var dialector gorm.Dialector
	switch dbBackend {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		panic(fmt.Sprintf("Unsupported database backend: %s", dbBackend))
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}

	stmt := &gorm.Statement{DB: db}
	if debug {
		for i, table := range Tabels {
			stmt.Parse(table)
			tableName := stmt.Schema.Table
			slog.Info("Dropping table", "n", i+1, "total", len(Tabels), "table", tableName)
			db.Migrator().DropTable(table)
		}
	}

	for i, table := range Tabels {
		stmt.Parse(table)
		tableName := stmt.Schema.Table
		slog.Info("Migrating table", "n", i+1, "total", len(Tabels), "table", tableName)
		if err := db.AutoMigrate(table); err != nil {
			panic(fmt.Sprintf("Failed to migrate table %s: %v", tableName, err))
		}
	}

	return db
}
