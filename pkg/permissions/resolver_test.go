package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		name       string
		role       Role
		capability Capability
		want       bool
	}{
		{"nurse records vitals", RoleNurse, CapRecordVitals, true},
		{"nurse cannot prescribe", RoleNurse, CapPrescribe, false},
		{"physician prescribes", RolePhysician, CapPrescribe, true},
		{"resident cannot finalize", RoleResident, CapFinalizeDocumentation, false},
		{"admin manages users", RoleAdmin, CapManageUsers, true},
		{"admin cannot prescribe", RoleAdmin, CapPrescribe, false},
		{"transport views charts", RoleTransport, CapViewCharts, true},
		{"transport cannot edit charts", RoleTransport, CapEditCharts, false},
		{"security has nothing", RoleSecurity, CapViewCharts, false},
		{"it support manages system", RoleITSupport, CapManageSystem, true},
		{"pending has nothing", RolePending, CapViewCharts, false},
		{"unknown role", RoleUnknown, CapViewCharts, false},
		{"unlisted role string", Role("janitor"), CapViewCharts, false},
		{"unknown capability", RolePhysician, Capability("teleport"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.capability))
		})
	}
}

func TestCanPerformAction(t *testing.T) {
	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RolePhysician, ActionSignOrders, true},
		{RoleNP, ActionCreatePrescription, true},
		{RoleResident, ActionFinalizeNote, false},
		{RoleFellow, ActionFinalizeNote, true},
		{RoleNurse, ActionAdministerMed, true},
		{RoleNurse, ActionSignOrders, false},
		{RoleSocialWorker, ActionDischargePatient, true},
		{RoleRadiologist, ActionDiagnosePatient, true},
		{RoleRadiologist, ActionOrderImaging, false},
		{RolePhysician, Action("launch_rocket"), false},
		{RoleUnknown, ActionSignOrders, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, CanPerformAction(tt.role, tt.action))
		})
	}
}

func TestEveryActionMapsToKnownCapability(t *testing.T) {
	known := make(map[Capability]bool)
	for _, c := range AllCapabilities() {
		known[c] = true
	}

	for _, a := range AllActions() {
		c, ok := RequiredCapability(a)
		require.True(t, ok, a)
		assert.True(t, known[c], "action %s maps to unknown capability %s", a, c)
	}
}

func TestEveryRoleHasTableEntry(t *testing.T) {
	for _, r := range AllRoles() {
		_, ok := roleCapabilities[r]
		assert.True(t, ok, "role %s missing from capability table", r)
	}
	assert.NotContains(t, AllRoles(), RoleUnknown)
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
	}{
		{"nurse", RoleNurse},
		{" Physician ", RolePhysician},
		{"ADMIN", RoleAdmin},
		{"pending", RolePending},
		{"", RoleUnknown},
		{"superuser", RoleUnknown},
		{"unknown", RoleUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseRole(tt.in), "ParseRole(%q)", tt.in)
	}
}

func TestRolesWith(t *testing.T) {
	roles := RolesWith(CapFinalizeDocumentation)
	assert.ElementsMatch(t, []Role{RolePhysician, RoleFellow, RoleNP, RolePA}, roles)

	assert.Empty(t, RolesWith(Capability("nope")))
}

func TestCapabilitiesForReturnsCopy(t *testing.T) {
	caps := CapabilitiesFor(RoleAdmin)
	require.Len(t, caps, 5)
	caps[0] = CapPrescribe

	assert.False(t, HasPermission(RoleAdmin, CapPrescribe))
	assert.Empty(t, CapabilitiesFor(RoleUnknown))
}

func TestDisplayNameAndCategory(t *testing.T) {
	assert.Equal(t, "Registered Nurse (RN)", DisplayName(RoleNurse))
	assert.Equal(t, "mystery", DisplayName(Role("mystery")))

	cat, ok := CategoryOf(RoleRadiologist)
	require.True(t, ok)
	assert.Equal(t, CategoryDiagnostic, cat)

	_, ok = CategoryOf(RoleUnknown)
	assert.False(t, ok)

	groups := RolesByCategory()
	require.Len(t, groups[CategoryNursing], 2)
	assert.Equal(t, RoleNurse, groups[CategoryNursing][0].Role)
	assert.Equal(t, RoleLPN, groups[CategoryNursing][1].Role)
}

func TestCategoriesCoverEveryRole(t *testing.T) {
	listed := make(map[Category]bool)
	for _, c := range Categories() {
		listed[c] = true
	}
	for category := range RolesByCategory() {
		assert.True(t, listed[category], "category %s is not listed", category)
	}
}
