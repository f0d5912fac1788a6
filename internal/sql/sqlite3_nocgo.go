//go:build !cgo

package sql

func checkSqlite3RetryError(err error) bool {
	return false
}
