package index

import "fmt"

// Open constructs the Index backend named by driver ("memory", "sqlite",
// or "postgres"), using dsn as the sqlite file path or postgres
// connection string.
func Open(driver, dsn string) (Index, error) {
	switch driver {
	case "", "memory":
		return NewMemoryIndex(), nil
	case "sqlite":
		return NewSQLiteIndex(dsn)
	case "postgres":
		return NewPostgresIndex(dsn)
	default:
		return nil, fmt.Errorf("unknown index driver %q", driver)
	}
}
