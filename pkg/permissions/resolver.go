package permissions

import "sort"

var providerCapabilities = []Capability{
	CapDiagnose,
	CapPrescribe,
	CapOrderMedications,
	CapOrderLabs,
	CapOrderImaging,
	CapOrderProcedures,
	CapFinalizeDocumentation,
	CapDocumentAssessments,
	CapRecordVitals,
	CapViewCharts,
	CapEditCharts,
	CapManageCarePlan,
}

var roleCapabilities = map[Role][]Capability{
	RoleAdmin: {CapAccessAdminPanel, CapManageUsers, CapManageSystem, CapViewCharts, CapEditCharts},

	RolePhysician: providerCapabilities,
	// Residents cannot finalize documentation or own the care plan.
	RoleResident: {
		CapDiagnose, CapPrescribe, CapOrderMedications, CapOrderLabs, CapOrderImaging,
		CapOrderProcedures, CapDocumentAssessments, CapRecordVitals, CapViewCharts, CapEditCharts,
	},
	RoleFellow: providerCapabilities,
	RoleNP:     providerCapabilities,
	RolePA:     providerCapabilities,

	RoleNurse: {
		CapDocumentAssessments, CapRecordVitals, CapAdministerMedications, CapInitiateProtocols,
		CapViewCharts, CapEditCharts, CapAssistProcedures,
	},
	RoleLPN: {CapDocumentAssessments, CapRecordVitals, CapAdministerMedications, CapViewCharts, CapAssistProcedures},

	RoleCNA:  {CapRecordBasicVitals, CapAssistProcedures, CapViewCharts},
	RoleMA:   {CapRecordBasicVitals, CapAssistProcedures, CapViewCharts, CapDocumentAssessments},
	RoleCCMA: {CapRecordBasicVitals, CapAssistProcedures, CapViewCharts, CapDocumentAssessments},
	RoleTech: {CapRecordBasicVitals, CapAssistProcedures, CapViewCharts},

	RoleMedStudent: {CapViewCharts},
	RoleScribe:     {CapDocumentForProvider, CapViewCharts},

	RoleLabTech:              {CapProcessLabResults, CapViewCharts},
	RoleLabAdmin:             {CapManageLabOrders, CapProcessLabResults, CapViewCharts},
	RolePharmacist:           {CapManageMedications, CapViewCharts},
	RolePharmacyTech:         {CapViewCharts},
	RoleRadiologyTech:        {CapProcessRadiology, CapViewCharts},
	RoleRadiologist:          {CapProcessRadiology, CapDiagnose, CapViewCharts},
	RoleRespiratoryTherapist: {CapProcessRespiratory, CapViewCharts, CapDocumentAssessments},

	RoleSocialWorker: {CapManageDischarge, CapViewCharts},
	RoleCaseManager:  {CapManageDischarge, CapManageCarePlan, CapViewCharts},
	RoleDietitian:    {CapManageNutrition, CapViewCharts},

	RoleRegistration: {CapRegisterPatients, CapViewCharts},
	RoleBilling:      {CapManageBilling, CapViewCharts},

	RoleTransport:    {CapViewCharts},
	RoleSecurity:     {},
	RoleITSupport:    {CapManageSystem},
	RoleHousekeeping: {},

	RoleVisitor:    {},
	RoleResearcher: {CapAccessResearchData, CapViewCharts},

	RolePending: {},
}

// grants is the lookup form of roleCapabilities. It is built once and never mutated.
var grants = func() map[Role]map[Capability]struct{} {
	m := make(map[Role]map[Capability]struct{}, len(roleCapabilities))
	for role, caps := range roleCapabilities {
		set := make(map[Capability]struct{}, len(caps))
		for _, c := range caps {
			set[c] = struct{}{}
		}
		m[role] = set
	}
	return m
}()

// HasPermission reports whether role grants capability. Unknown roles and unknown
// capabilities are never granted.
func HasPermission(role Role, capability Capability) bool {
	set, ok := grants[role]
	if !ok {
		return false
	}
	_, ok = set[capability]
	return ok
}

// CapabilitiesFor returns a copy of the capabilities granted to role, sorted by name.
func CapabilitiesFor(role Role) []Capability {
	set := grants[role]
	out := make([]Capability, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RolesWith returns every role that grants capability, in display order.
func RolesWith(capability Capability) []Role {
	var out []Role
	for _, def := range roleDefinitions {
		if HasPermission(def.Role, capability) {
			out = append(out, def.Role)
		}
	}
	return out
}

// RequiredCapability returns the capability an action needs
func RequiredCapability(action Action) (Capability, bool) {
	c, ok := actionCapabilities[action]
	return c, ok
}

// CanPerformAction reports whether role may perform action. Unknown actions are denied.
func CanPerformAction(role Role, action Action) bool {
	c, ok := actionCapabilities[action]
	if !ok {
		return false
	}
	return HasPermission(role, c)
}

// AllActions lists the known clinical actions sorted by name
func AllActions() []Action {
	out := make([]Action, 0, len(actionCapabilities))
	for a := range actionCapabilities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
