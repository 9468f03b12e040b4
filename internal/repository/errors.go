// Package repository implements the inventory contracts on MySQL.
// Not-found and conflict conditions are reported with the sentinel
// errors of package inventory so callers can match them with
// errors.Is regardless of the backing store.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// isDuplicateKey reports whether err is a unique index violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
