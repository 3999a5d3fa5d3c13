package orderflow

import "github.com/cleanhouse123/orderflow/id"

// ID is the primary identifier type for all orderflow entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
