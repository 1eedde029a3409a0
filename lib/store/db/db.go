// Package db implements the opening and graceful closing of database connections.
package db

import (
	"github.com/cexcore/custody/lib/store"
	"github.com/cexcore/custody/lib/store/memory"
	"github.com/cexcore/custody/lib/store/mongo"
)

const (
	MONGODB string = "mongodb"
	MEMORY  string = "memory"
)

// New returns a new database connection according to the options (database type).
func New(options, connection string) (store.DB, error) {
	switch options {
	case MONGODB:
		return mongo.New(connection)
	case MEMORY:
		return memory.New(), nil
	}

	return nil, nil
}

// Close gracefully closes the database connection.
func Close(options string, dh store.DB) error {
	switch options {
	case MONGODB:
		return dh.(*mongo.Mongo).CloseMongo()
	case MEMORY:
		return dh.(*memory.Memory).Close()
	}

	return nil
}
