package family

import (
	"context"
)

// Repository loads the person records matching a query. Implementations
// return an empty slice, not an error, when nothing matches.
type Repository interface {
	FindPersons(ctx context.Context, q Query) ([]PersonRecord, error)
}
