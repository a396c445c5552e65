// Package permissions resolves what a Cura role may do.
//
// The tables here are static and immutable: a role maps to a fixed set of capability
// tags, and every clinical action maps to exactly one required capability.
//
//	permissions.HasPermission(permissions.RoleNurse, permissions.CapRecordVitals)       // true
//	permissions.CanPerformAction(permissions.RoleResident, permissions.ActionFinalizeNote) // false
//
// Role strings coming from storage go through ParseRole. Anything outside the known set
// becomes RoleUnknown, which resolves to the empty capability set instead of failing.
package permissions
