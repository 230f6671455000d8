package moper

import "github.com/SistemasTSJavier/MOPER-TS/internal/users"

// FirmaManuscrita is the fixed signer name recorded for the conformidad slot.
// The subject has no account, so no display name exists to record.
const FirmaManuscrita = "Firma manuscrita"

// slotRoles is the single source of truth for which roles may fill each
// role-gated slot. Conformidad is absent on purpose: it is gated by the
// record's access code, never by a role.
var slotRoles = map[Slot][]string{
	SlotRH:      {users.RolRH, users.RolAdmin},
	SlotGerente: {users.RolGerente, users.RolAdmin},
	SlotControl: {users.RolControl, users.RolAdmin},
}

// RoleAllowed reports whether an account with the given role may sign the
// slot. It always returns false for SlotConformidad.
func RoleAllowed(slot Slot, rol string) bool {
	for _, allowed := range slotRoles[slot] {
		if rol == allowed {
			return true
		}
	}
	return false
}
