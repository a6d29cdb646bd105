package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleCan(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, CapManageCatalog, true},
		{RoleAdmin, CapViewStatistics, true},
		{RoleSeller, CapCheckout, true},
		{RoleSeller, CapViewCatalog, true},
		{RoleSeller, CapViewSales, true},
		{RoleSeller, CapManageCatalog, false},
		{RoleSeller, CapManageSuppliers, false},
		{RoleSeller, CapViewStatistics, false},
		{RoleSeller, CapManageUsers, false},
		{RoleAdmin, CapManageUsers, true},
		{Role("guest"), CapViewCatalog, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+tt.cap.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.role.Can(tt.cap))
		})
	}
}

func TestPaymentMethodValid(t *testing.T) {
	assert.True(t, PaymentCash.Valid())
	assert.True(t, PaymentCredit.Valid())
	assert.False(t, PaymentMethod("qris").Valid())
	assert.False(t, PaymentMethod("").Valid())
}
