package keeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3keepers/auctionbot/internal/model"
)

func newTestRegistry() (*Registry, *map[uint64]*fakeHandle, *int) {
	handles := make(map[uint64]*fakeHandle)
	created := 0
	factory := func(p model.Parameters) (model.Handle, error) {
		created++
		h := &fakeHandle{}
		handles[p.ID] = h
		return h, nil
	}
	paramsFor := func(id uint64) model.Parameters { return model.Parameters{ID: id} }
	return NewRegistry(factory, paramsFor), &handles, &created
}

func TestRegistrySingleModelPerAuction(t *testing.T) {
	r, _, created := newTestRegistry()

	a, err := r.Get(7, true)
	require.NoError(t, err)
	require.NotNil(t, a)

	again, err := r.Get(7, true)
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, 1, *created)
}

func TestRegistryGetWithoutCreate(t *testing.T) {
	r, _, created := newTestRegistry()

	a, err := r.Get(7, false)
	require.NoError(t, err)
	assert.Nil(t, a)
	assert.Equal(t, 0, *created)
}

func TestRegistryRemoveIsIdempotent(t *testing.T) {
	r, handles, _ := newTestRegistry()

	_, err := r.Get(7, true)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())

	r.Remove(7)
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, (*handles)[7].terminated)

	r.Remove(7)
	assert.Equal(t, 1, (*handles)[7].terminated)
}

func TestRegistryAllSorted(t *testing.T) {
	r, _, _ := newTestRegistry()
	for _, id := range []uint64{9, 2, 5} {
		_, err := r.Get(id, true)
		require.NoError(t, err)
	}

	all := r.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint64(2), all[0].ID)
	assert.Equal(t, uint64(5), all[1].ID)
	assert.Equal(t, uint64(9), all[2].ID)
}

func TestRegistryClear(t *testing.T) {
	r, handles, _ := newTestRegistry()
	for _, id := range []uint64{1, 2} {
		_, err := r.Get(id, true)
		require.NoError(t, err)
	}

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 1, (*handles)[1].terminated)
	assert.Equal(t, 1, (*handles)[2].terminated)
}
