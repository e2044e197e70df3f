// Copyright (c) 2025 SQLBatis Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package sqlbatis

import (
	"database/sql"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

// TestSupportedDriversRegister pins the driver set go.mod requires and
// callers can blank-import (mysql, postgres, sqlite): each driver
// self-registers with database/sql on import, independent of anything this
// package does, so a real Environment.DB built with sql.Open("mysql", ...)
// or its postgres/sqlite equivalents works out of the box.
func TestSupportedDriversRegister(t *testing.T) {
	drivers := sql.Drivers()
	assert.Contains(t, drivers, "mysql")
	assert.Contains(t, drivers, "postgres")
	assert.Contains(t, drivers, "sqlite3")
}
