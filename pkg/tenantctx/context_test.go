package tenantctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, Check(ctx, "T1"))

	ctx = WithTenantID(ctx, "T1")
	assert.NoError(t, Check(ctx, "T1"))
	assert.ErrorIs(t, Check(ctx, "T2"), ErrScopeMismatch)

	id, ok := TenantID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "T1", id)
}
