package inventory

import (
	"context"
	"errors"

	errs "catlux/pkg/errors"
	"catlux/pkg/models"
)

// Store is the read side of a destination
type Store interface {
	Accessible(ctx context.Context) error
	Exists(ctx context.Context, name string) (bool, error)
}

// Inventory records which documents are already present in the destination
type Inventory map[string]bool

// IsLocal reports whether id is present. Unknown ids are not local.
func (inv Inventory) IsLocal(id string) bool {
	return inv[id]
}

// Count returns how many scanned documents are present
func (inv Inventory) Count() int {
	n := 0
	for _, local := range inv {
		if local {
			n++
		}
	}
	return n
}

// Scan checks every record against the store. It only reads. An unreadable
// destination is reported as a StorageUnavailableError rather than as an
// empty inventory.
func Scan(ctx context.Context, store Store, location string, records []models.Record) (Inventory, error) {
	if err := store.Accessible(ctx); err != nil {
		return nil, asUnavailable(location, err)
	}

	inv := make(Inventory, len(records))
	for _, r := range records {
		ok, err := store.Exists(ctx, r.FileName())
		if err != nil {
			return nil, asUnavailable(location, err)
		}
		inv[r.ID] = ok
	}
	return inv, nil
}

func asUnavailable(location string, err error) error {
	var unavailable *errs.StorageUnavailableError
	if errors.As(err, &unavailable) {
		return err
	}
	return &errs.StorageUnavailableError{Location: location, Err: err}
}
