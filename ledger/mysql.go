package ledger

import (
	"database/sql"
	"log"

	// no _ in import mysql since we need mysql.NullTime
	"github.com/BurntSushi/migration"
	"github.com/go-sql-driver/mysql"
)

// mysqlLedger keeps the ledger in MySQL, so several lambda containers can
// share it.
type mysqlLedger struct {
	db *sql.DB
}

var _ Ledger = &mysqlLedger{}

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
}

// Adapt the schema versioning for MySQL

var mysqlVersioning = dbVersion{
	GetSQL:    `SELECT max(version) FROM migration_version`,
	SetSQL:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	CreateSQL: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

// NewMySQL connects to a MySQL database, bringing its schema up to date.
func NewMySQL(dial string) (Ledger, error) {
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.Get,
		mysqlVersioning.Set)
	if err != nil {
		log.Printf("Open Mysql: %s", err.Error())
		return nil, err
	}
	return &mysqlLedger{db: db}, nil
}

// database migrations. each one is a go function. Add them to the
// list mysqlMigrations at top of this file for them to be run.

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS checksums (
		id int PRIMARY KEY AUTO_INCREMENT,
		file_id varchar(255),
		algorithm varchar(32),
		expected varchar(255),
		calculated varchar(255),
		status varchar(32),
		notes text,
		recorded datetime(6),
		INDEX checksums_file (file_id))`,
	}
	return execlist(tx, s)
}

func (ms *mysqlLedger) Add(r Record) (int64, error) {
	const query = `INSERT INTO checksums
		(file_id, algorithm, expected, calculated, status, notes, recorded)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	stamp(&r)
	result, err := ms.db.Exec(query,
		r.FileID, r.Algorithm, r.Expected, r.Calculated, r.Status, r.Notes, r.When)
	if err != nil {
		log.Printf("ledger mysql: %s", err.Error())
		return 0, err
	}
	return result.LastInsertId()
}

const mysqlSelect = `
	SELECT id, file_id, algorithm, expected, calculated, status, notes, recorded
	FROM checksums
	WHERE file_id = ?`

func mysqlScan(s scanner) (Record, error) {
	var r Record
	var when mysql.NullTime
	err := s.Scan(&r.ID, &r.FileID, &r.Algorithm, &r.Expected, &r.Calculated, &r.Status, &r.Notes, &when)
	if when.Valid {
		r.When = when.Time
	}
	return r, err
}

func (ms *mysqlLedger) List(fileID string) ([]Record, error) {
	rows, err := ms.db.Query(mysqlSelect+` ORDER BY recorded DESC, id DESC`, fileID)
	if err != nil {
		return nil, err
	}
	return collect(rows, mysqlScan)
}

func (ms *mysqlLedger) Latest(fileID, algorithm string) (*Record, error) {
	rows, err := ms.db.Query(mysqlSelect+` AND algorithm = ? ORDER BY recorded DESC, id DESC LIMIT 1`, fileID, algorithm)
	if err != nil {
		return nil, err
	}
	return first(collect(rows, mysqlScan))
}

func (ms *mysqlLedger) Delete(id int64) error {
	_, err := ms.db.Exec(`DELETE FROM checksums WHERE id = ?`, id)
	return err
}

func (ms *mysqlLedger) Close() error {
	return ms.db.Close()
}
