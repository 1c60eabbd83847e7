package ledger

import (
	"database/sql"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/BurntSushi/migration"
	_ "github.com/cznic/ql/driver"
)

// qlLedger keeps the ledger in the QL embedded database. It is intended for
// a single lambda container, or for development.
type qlLedger struct {
	db *sql.DB
}

var _ Ledger = &qlLedger{}

var qlMigrations = []migration.Migrator{
	qlschema1,
}

var qlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version VALUES (?1, now())`,
	CreateSQL: `CREATE TABLE migration_version (version int, applied time)`,
}

// each in memory database needs its own name, otherwise they are shared
var memoryCount int64

// NewQL opens a QL database ledger. filename is the name of the file to save
// the database to. The filename "memory" means to keep everything in memory.
func NewQL(filename string) (Ledger, error) {
	driver, dsn := "ql", filename
	if filename == "memory" {
		driver = "ql-mem"
		dsn = fmt.Sprintf("ledger%d.db", atomic.AddInt64(&memoryCount, 1))
	}
	db, err := migration.OpenWith(
		driver,
		dsn,
		qlMigrations,
		qlVersioning.Get,
		qlVersioning.Set)
	if err != nil {
		log.Printf("Open QL: %s", err.Error())
		return nil, err
	}
	// QL allows only one writer at a time
	db.SetMaxOpenConns(1)
	return &qlLedger{db: db}, nil
}

func qlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS checksums (
			file_id string,
			algorithm string,
			expected string,
			calculated string,
			status string,
			notes string,
			recorded time
		)`,
		`CREATE INDEX IF NOT EXISTS checksumsfile ON checksums (file_id)`,
	}
	return execlist(tx, s)
}

func (ql *qlLedger) Add(r Record) (int64, error) {
	const query = `INSERT INTO checksums VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7)`

	stamp(&r)
	result, err := performExec(ql.db, query,
		r.FileID, r.Algorithm, r.Expected, r.Calculated, r.Status, r.Notes, r.When)
	if err != nil {
		log.Printf("ledger QL: %s", err.Error())
		return 0, err
	}
	return result.LastInsertId()
}

// QL cannot order by id() directly, so it is renamed in a subquery.
const qlSelect = `
	SELECT id, file_id, algorithm, expected, calculated, status, notes, recorded
	FROM (SELECT id() AS id, file_id, algorithm, expected, calculated, status, notes, recorded
		FROM checksums
		WHERE file_id == ?1 %s)
	ORDER BY recorded, id DESC
	%s`

func qlScan(s scanner) (Record, error) {
	var r Record
	err := s.Scan(&r.ID, &r.FileID, &r.Algorithm, &r.Expected, &r.Calculated, &r.Status, &r.Notes, &r.When)
	return r, err
}

func (ql *qlLedger) List(fileID string) ([]Record, error) {
	rows, err := ql.db.Query(fmt.Sprintf(qlSelect, "", ""), fileID)
	if err != nil {
		return nil, err
	}
	return collect(rows, qlScan)
}

func (ql *qlLedger) Latest(fileID, algorithm string) (*Record, error) {
	rows, err := ql.db.Query(fmt.Sprintf(qlSelect, "AND algorithm == ?2", "LIMIT 1"), fileID, algorithm)
	if err != nil {
		return nil, err
	}
	return first(collect(rows, qlScan))
}

func (ql *qlLedger) Delete(id int64) error {
	const query = `DELETE FROM checksums WHERE id() == ?1`

	_, err := performExec(ql.db, query, id)
	return err
}

func (ql *qlLedger) Close() error {
	return ql.db.Close()
}

// QL only allows changes inside a transaction.
func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	var result sql.Result
	result, err = tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	return result, err
}
