package vector

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPointID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id))

	derived := pointID("kb-entry-42")
	_, err := uuid.Parse(derived)
	assert.NoError(t, err)
	assert.Equal(t, derived, pointID("kb-entry-42"))
	assert.NotEqual(t, derived, pointID("kb-entry-43"))
}
