package inventory

import (
	"context"
	"errors"
	"testing"

	errs "catlux/pkg/errors"
	"catlux/pkg/logger"
	"catlux/pkg/models"
	"catlux/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	files         map[string]bool
	accessibleErr error
	existsErr     error
	calls         int
}

func (f *fakeStore) Accessible(context.Context) error { return f.accessibleErr }

func (f *fakeStore) Exists(_ context.Context, name string) (bool, error) {
	f.calls++
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.files[name], nil
}

func records() []models.Record {
	return []models.Record{
		{ID: "119215", Kind: models.KindExam, GroupID: "119215"},
		{ID: "119215_solution", Kind: models.KindSolution, GroupID: "119215"},
		{ID: "118065", Kind: models.KindExam, GroupID: "118065"},
		{ID: "118065_solution", Kind: models.KindSolution, GroupID: "118065"},
	}
}

func TestScan(t *testing.T) {
	store := &fakeStore{files: map[string]bool{"119215.pdf": true, "119215_solution.pdf": true}}

	inv, err := Scan(context.Background(), store, "/dest", records())
	require.NoError(t, err)

	assert.Equal(t, Inventory{
		"119215":          true,
		"119215_solution": true,
		"118065":          false,
		"118065_solution": false,
	}, inv)
	assert.True(t, inv.IsLocal("119215"))
	assert.False(t, inv.IsLocal("unknown"))
	assert.Equal(t, 2, inv.Count())
	assert.Equal(t, 4, store.calls)
}

func TestScanUnavailable(t *testing.T) {
	store := &fakeStore{accessibleErr: errors.New("permission denied")}

	inv, err := Scan(context.Background(), store, "/dest", records())
	assert.Nil(t, inv)

	var unavailable *errs.StorageUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "/dest", unavailable.Location)
	assert.Equal(t, 0, store.calls)
}

func TestScanExistsFailure(t *testing.T) {
	store := &fakeStore{existsErr: errors.New("i/o error")}

	_, err := Scan(context.Background(), store, "/dest", records())
	var unavailable *errs.StorageUnavailableError
	assert.ErrorAs(t, err, &unavailable)
}

func TestScanWithBucket(t *testing.T) {
	ctx := context.Background()
	m, err := storage.Open(ctx, "mem://", logger.NewNopLogger())
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.WriteAtomic(ctx, "118065.pdf", []byte("%PDF")))

	inv, err := Scan(ctx, m, m.Location(), records())
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Count())
	assert.True(t, inv.IsLocal("118065"))
}

func TestScanEmpty(t *testing.T) {
	inv, err := Scan(context.Background(), &fakeStore{}, "/dest", nil)
	require.NoError(t, err)
	assert.Empty(t, inv)
}
