// Package postgres implements the storage repositories on PostgreSQL.
package postgres

import (
	"fmt"

	"github.com/vietddude/scraperd/internal/infra/storage"
)

func storageErrNotFound(id string) error {
	return fmt.Errorf("%w: %s", storage.ErrSessionNotFound, id)
}
