//go:build integration

package ledger

import (
	"flag"
	"testing"
)

// The database should be empty, since the test checks exact counts.
var dialmysql = flag.String("mysql", "/test?parseTime=true", "Dial for mysql")

func TestMySQLLedger(t *testing.T) {
	l, err := NewMySQL(*dialmysql)
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	defer l.Close()
	exerciseLedger(t, l)
}
