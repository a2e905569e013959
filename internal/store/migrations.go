package store

import (
	"database/sql"
	"log"

	assets "github.com/okarhu/pipewatch"
	"github.com/okarhu/pipewatch/internal"
	"github.com/pressly/goose/v3"
)

func RunMigrations(db *sql.DB) {
	goose.SetBaseFS(assets.MigrationsFS)
	if err := goose.SetDialect("sqlite"); err != nil {
		log.Fatal(err)
	}
	if err := goose.Up(db, internal.MigrationsDir); err != nil {
		log.Fatal(err)
	}
}
