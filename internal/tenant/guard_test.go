package tenant

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cloudonix/voicerouter/internal/engineerr"
)

type fakeEntity struct{ tenantID string }

func (f fakeEntity) GetTenantID() string { return f.tenantID }

func TestGuard_AllowsSameTenant(t *testing.T) {
	assert.NoError(t, Guard("t1", fakeEntity{tenantID: "t1"}))
}

func TestGuard_RejectsCrossTenant(t *testing.T) {
	err := Guard("t1", fakeEntity{tenantID: "t2"})
	assert.ErrorIs(t, err, engineerr.ErrTenantIsolation)
}

func TestGuardID(t *testing.T) {
	assert.NoError(t, GuardID("t1", "t1"))
	assert.ErrorIs(t, GuardID("t1", "t2"), engineerr.ErrTenantIsolation)
}
