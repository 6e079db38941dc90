package xerr

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	notFound := New(NotFound, "order not found")
	wrapped := fmt.Errorf("delete 7: %w", notFound)

	assert.Equal(t, OK, CodeOf(nil))
	assert.Equal(t, NotFound, CodeOf(wrapped))
	assert.Equal(t, Internal, CodeOf(fmt.Errorf("plain")))
	assert.True(t, IsCode(wrapped, NotFound))
	assert.False(t, IsCode(nil, NotFound))
	assert.Equal(t, "busy", NewErrCode(Busy).(*CodeError).Msg)
}
