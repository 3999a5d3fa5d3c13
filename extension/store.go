package extension

import (
	"fmt"

	"github.com/xraph/grove"

	"github.com/cleanhouse123/orderflow/store"
	"github.com/cleanhouse123/orderflow/store/memory"
	"github.com/cleanhouse123/orderflow/store/mongo"
	"github.com/cleanhouse123/orderflow/store/postgres"
	"github.com/cleanhouse123/orderflow/store/sqlite"
)

// OpenStore builds the store backend named by driver. The memory driver
// ignores db; every other driver requires it.
func OpenStore(driver string, db *grove.DB) (store.Store, error) {
	if driver == "" || driver == DriverMemory {
		return memory.New(), nil
	}
	if db == nil {
		return nil, fmt.Errorf("orderflow: driver %q requires a grove database", driver)
	}

	switch driver {
	case DriverPostgres:
		return postgres.New(db), nil
	case DriverSQLite:
		return sqlite.New(db), nil
	case DriverMongo:
		return mongo.New(db), nil
	default:
		return nil, fmt.Errorf("orderflow: unknown store driver %q", driver)
	}
}
