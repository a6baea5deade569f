package persistence_test

import (
	"errors"
	"io"
	"testing"

	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
)

func TestStandardizedErrors(t *testing.T) {
	t.Parallel()

	t.Run("error checking functions work correctly", func(t *testing.T) {
		itemErr := persistence.NewItemError("Get", "item-123", persistence.ErrItemNotFound)
		unitErr := persistence.NewUnitError("GetUnit", "staff", "nurse-1", persistence.ErrUnitNotFound)

		assert.True(t, persistence.IsItemNotFound(itemErr))
		assert.True(t, persistence.IsUnitNotFound(unitErr))
		assert.False(t, persistence.IsItemNotFound(unitErr))
		assert.True(t, errors.Is(itemErr, persistence.ErrItemNotFound))
	})

	t.Run("item error contains context", func(t *testing.T) {
		err := persistence.NewItemError("Update", "item-123", persistence.ErrVersionConflict)

		assert.Contains(t, err.Error(), "Update")
		assert.Contains(t, err.Error(), "item-123")
		assert.Contains(t, err.Error(), "version conflict")
		assert.True(t, persistence.IsVersionConflict(err))
	})

	t.Run("unavailable keeps the cause", func(t *testing.T) {
		err := persistence.Unavailable("ListUnits", io.ErrUnexpectedEOF)

		assert.True(t, persistence.IsTransient(err))
		assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
		assert.False(t, persistence.IsTransient(persistence.ErrItemNotFound))
	})
}
