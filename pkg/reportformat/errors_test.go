package reportformat

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		op   Operation
		err  error
		want int
	}{
		{OpCreate, nil, 0},
		{OpCreate, ErrExists, 1},
		{OpCreate, ErrEmptyFileName, 2},
		{OpCreate, ErrParamTypeUnknown, 9},
		{OpCreate, ErrPermissionDenied, 99},
		{OpCopy, ErrNotFound, 2},
		{OpModify, ErrNotFound, 1},
		{OpModify, ErrExists, 6},
		{OpDelete, ErrInUse, 1},
		{OpDelete, ErrPredefined, 3},
		{OpRestore, ErrUUIDConflict, 4},
		{OpRestore, ErrPermissionDenied, -1},
		{OpVerify, ErrNotFound, 1},
		{OpCreate, fmt.Errorf("write: %w", ErrParamDuplicate), 8},
		{OpDelete, errors.New("disk on fire"), -1},
		{OpRestore, ErrCorruptTrash, -1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.op, tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.op, tt.err))
		})
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindPermission, KindOf(ErrPermissionDenied))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("x: %w", ErrNotFound)))
	assert.Equal(t, KindInUse, KindOf(ErrInUse))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, "conflict", KindOf(ErrNameConflict).String())
}
