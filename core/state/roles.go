package state

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Capability identifiers recognised by the commerce modules. External callers
// may register additional roles; the modules only ever test membership.
const (
	// RoleOperator may mutate module configuration (products, payment
	// tokens, farming tokens).
	RoleOperator = "ROLE_OPERATOR"
	// RoleFactoryContract may initiate payments on the router.
	RoleFactoryContract = "ROLE_FACTORY_CONTRACT"
	// RolePaymentContract may mint and redeem cashback points.
	RolePaymentContract = "ROLE_PAYMENT_CONTRACT"
)

func roleKey(role string, addr common.Address) []byte {
	return []byte(fmt.Sprintf("roles/%s/%s", role, addr.Hex()))
}

// HasRole reports whether addr holds the given capability.
func (m *Manager) HasRole(role string, addr common.Address) bool {
	if m == nil {
		return false
	}
	var held bool
	ok, err := m.KVGet(roleKey(role, addr), &held)
	if err != nil || !ok {
		return false
	}
	return held
}

// GrantRole records addr as a holder of the capability.
func (m *Manager) GrantRole(role string, addr common.Address) error {
	return m.KVPut(roleKey(role, addr), true)
}

// RevokeRole removes addr from the capability.
func (m *Manager) RevokeRole(role string, addr common.Address) error {
	return m.KVDelete(roleKey(role, addr))
}
