// Package ledger keeps a record of every checksum the lambdas compute, so the
// outcome of a verification can be looked up after the batch that made it
// has finished. Records are kept in an embedded QL database, or in MySQL for
// deployments with more than one lambda container.
package ledger

import (
	"database/sql"
	"log"
	"time"

	"github.com/BurntSushi/migration"
)

// The possible values of Record.Status.
const (
	StatusOK         = "ok"         // calculated matches expected
	StatusMismatch   = "mismatch"   // calculated differs from expected
	StatusCalculated = "calculated" // there was no expected value
	StatusError      = "error"      // the checksum could not be computed
)

// Record is the outcome of computing one checksum of one file.
type Record struct {
	ID         int64     `json:"id"`
	FileID     string    `json:"fileId"`
	Algorithm  string    `json:"algorithm"`
	Expected   string    `json:"expected,omitempty"`
	Calculated string    `json:"calculated,omitempty"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes,omitempty"`
	When       time.Time `json:"when"`
}

// Ledger stores Records. Implementations are safe to use from more than
// one goroutine.
type Ledger interface {
	// Add saves r and returns the id assigned to it. A zero When is
	// replaced by the current time.
	Add(r Record) (int64, error)
	// List returns the records of a file, newest first.
	List(fileID string) ([]Record, error)
	// Latest returns the newest record for the file and algorithm, or nil
	// if there is none.
	Latest(fileID, algorithm string) (*Record, error)
	Delete(id int64) error
	Close() error
}

// we need to adapt the migration version functions to work with MySQL and QL
// This code is slightly modified from github.com/BurntSushi/migration

type dbVersion struct {
	// SQL to get the version of this db, returns one row and one column
	GetSQL string
	// SQL to insert a new version of this db. takes one parameter, the new
	// version
	SetSQL string
	// the SQL to create the version table for this db
	CreateSQL string
}

func (d dbVersion) Get(tx migration.LimitedTx) (int, error) {
	v, err := d.get(tx)
	if err != nil {
		// we assume error means there is no migration table
		log.Println("ledger:", err.Error())
		return 0, nil
	}
	return v, nil
}

func (d dbVersion) Set(tx migration.LimitedTx, version int) error {
	if err := d.set(tx, version); err != nil {
		if err := d.createTable(tx); err != nil {
			return err
		}
		return d.set(tx, version)
	}
	return nil
}

func (d dbVersion) get(tx migration.LimitedTx) (int, error) {
	var version sql.NullInt64
	r := tx.QueryRow(d.GetSQL)
	if err := r.Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func (d dbVersion) set(tx migration.LimitedTx, version int) error {
	_, err := tx.Exec(d.SetSQL, version)
	return err
}

func (d dbVersion) createTable(tx migration.LimitedTx) error {
	_, err := tx.Exec(d.CreateSQL)
	if err == nil {
		err = d.set(tx, 0)
	}
	return err
}

// execlist exec's each item in the list, return if there is an error.
// Used to work around mysql driver not handling compound exec statements.
func execlist(tx migration.LimitedTx, stms []string) error {
	var err error
	for _, s := range stms {
		_, err = tx.Exec(s)
		if err != nil {
			break
		}
	}
	return err
}

// scanner is either a *sql.Row or *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func collect(rows *sql.Rows, scan func(scanner) (Record, error)) ([]Record, error) {
	defer rows.Close()
	var result []Record
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func first(records []Record, err error) (*Record, error) {
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return &records[0], nil
}

func stamp(r *Record) {
	if r.When.IsZero() {
		r.When = time.Now()
	}
}

// Open returns the ledger configured by the two settings. A MySQL dial
// string wins over a QL file name. If both are empty, no ledger is kept and
// nil is returned.
func Open(qlFile, mysqlDial string) (Ledger, error) {
	switch {
	case mysqlDial != "":
		return NewMySQL(mysqlDial)
	case qlFile != "":
		return NewQL(qlFile)
	}
	return nil, nil
}
