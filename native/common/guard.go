package nativecommon

import (
	"errors"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ErrForbidden is returned when a caller lacks the capability an entry point
// requires.
var ErrForbidden = errors.New("forbidden")

// RoleView is the narrow capability-registry surface the modules consume.
type RoleView interface {
	HasRole(role string, addr ethcommon.Address) bool
}

// Guard rejects callers that do not hold the required capability.
func Guard(roles RoleView, role string, caller ethcommon.Address) error {
	if roles == nil || !roles.HasRole(role, caller) {
		return ErrForbidden
	}
	return nil
}
