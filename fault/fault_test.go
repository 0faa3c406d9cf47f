package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	err := New(ErrNotFound, "node %d", 7)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrStorage)
	assert.Equal(t, "not found: node 7", err.Error())
	assert.Equal(t, ErrNotFound, KindOf(fmt.Errorf("outer: %w", err)))

	cause := errors.New("disk on fire")
	w := Wrap(ErrStorage, cause, "put")
	assert.ErrorIs(t, w, ErrStorage)
	assert.ErrorIs(t, w, cause)
	assert.Equal(t, "storage error: put: disk on fire", w.Error())
}

var errTestConflict = errors.New("test conflict")

func init() { RegisterConflict(errTestConflict) }

func TestStorage(t *testing.T) {
	assert.NoError(t, Storage(nil))
	assert.ErrorIs(t, Storage(errors.New("boom")), ErrStorage)
	assert.ErrorIs(t, Storage(fmt.Errorf("commit: %w", errTestConflict)),
		ErrConcurrentModification)
	// already classified errors keep their kind
	assert.ErrorIs(t, Storage(New(ErrCyclic, "x")), ErrCyclic)
	assert.NotErrorIs(t, Storage(New(ErrCyclic, "x")), ErrStorage)
	assert.Nil(t, KindOf(errors.New("plain")))
}
