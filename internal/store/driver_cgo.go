//go:build cgo

package store

import (
	// libsql driver requires cgo; registers the "libsql" database/sql driver.
	_ "github.com/tursodatabase/go-libsql"
)
