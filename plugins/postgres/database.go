package postgres

import "database/sql"

// Database is a connection pool resource. Pools opened by postgres.connect
// belong to the flow and are closed with it; the shared default pool is not.
type Database struct {
	name  string
	db    *sql.DB
	owned bool
}

func (d *Database) String() string {
	return "postgres.db(" + d.name + ")"
}

func (d *Database) DB() *sql.DB { return d.db }

func (d *Database) Close() error {
	if !d.owned {
		return nil
	}
	return d.db.Close()
}
