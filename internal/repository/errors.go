// Package repository persists the reservation engine's state.  MySQLStore
// is the production store; MemoryStore serves development and tests.
// Both report absent rows with the model's not-found errors and
// translate constraint violations into model errors so that handlers can
// map them without knowing the backend.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers the store reacts to.
const (
	errDupEntry        = 1062
	errLockDeadlock    = 1213
	errLockWaitTimeout = 1205
)

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// isDuplicate reports a unique key violation.
func isDuplicate(err error) bool { return mysqlErrNumber(err) == errDupEntry }

// isRetryable reports deadlocks and lock wait timeouts.
func isRetryable(err error) bool {
	switch mysqlErrNumber(err) {
	case errLockDeadlock, errLockWaitTimeout:
		return true
	}
	return false
}
