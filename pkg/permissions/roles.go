package permissions

import "strings"

// Role is the closed set of clinical and operational roles a user profile can hold.
type Role string

const (
	// Administrative
	RoleAdmin Role = "admin"

	// Providers can diagnose, prescribe and place medical orders
	RolePhysician Role = "physician"
	RoleResident  Role = "resident"
	RoleFellow    Role = "fellow"
	RoleNP        Role = "np"
	RolePA        Role = "pa"

	// Nursing
	RoleNurse Role = "nurse"
	RoleLPN   Role = "lpn"

	// Clinical support
	RoleCNA  Role = "cna"
	RoleMA   Role = "ma"
	RoleCCMA Role = "ccma"
	RoleTech Role = "tech"

	RoleMedStudent Role = "med_student"
	RoleScribe     Role = "scribe"

	// Diagnostic and therapeutic
	RoleLabTech              Role = "lab_tech"
	RoleLabAdmin             Role = "lab_admin"
	RolePharmacist           Role = "pharmacist"
	RolePharmacyTech         Role = "pharmacy_tech"
	RoleRadiologyTech        Role = "radiology_tech"
	RoleRadiologist          Role = "radiologist"
	RoleRespiratoryTherapist Role = "respiratory_therapist"

	// Care coordination
	RoleSocialWorker Role = "social_worker"
	RoleCaseManager  Role = "case_manager"
	RoleDietitian    Role = "dietitian"

	// Administrative support
	RoleRegistration Role = "registration"
	RoleBilling      Role = "billing"

	// Hospital operations
	RoleTransport    Role = "transport"
	RoleSecurity     Role = "security"
	RoleITSupport    Role = "it_support"
	RoleHousekeeping Role = "housekeeping"

	// Special access
	RoleVisitor    Role = "visitor"
	RoleResearcher Role = "researcher"

	// RolePending is assigned to accounts awaiting an administrator's role assignment.
	RolePending Role = "pending"
	// RoleUnknown is what any unrecognised role string resolves to. It grants nothing.
	RoleUnknown Role = "unknown"
)

// Category groups roles for display
type Category string

const (
	CategoryAdministrative   Category = "administrative"
	CategoryProvider         Category = "provider"
	CategoryNursing          Category = "nursing"
	CategoryClinicalSupport  Category = "clinical_support"
	CategoryStudent          Category = "student"
	CategoryDocumentation    Category = "documentation"
	CategoryDiagnostic       Category = "diagnostic"
	CategoryTherapeutic      Category = "therapeutic"
	CategoryCareCoordination Category = "care_coordination"
	CategoryAdminSupport     Category = "admin_support"
	CategoryOperations       Category = "operations"
	CategorySpecial          Category = "special"
	CategoryUnassigned       Category = "unassigned"
)

// RoleDefinition describes a role for display purposes
type RoleDefinition struct {
	Role        Role     `json:"id"`
	DisplayName string   `json:"name"`
	Category    Category `json:"category"`
}

var roleDefinitions = []RoleDefinition{
	{RoleAdmin, "System Administrator", CategoryAdministrative},

	{RolePhysician, "Attending Physician (MD/DO)", CategoryProvider},
	{RoleResident, "Resident Physician", CategoryProvider},
	{RoleFellow, "Clinical Fellow", CategoryProvider},
	{RoleNP, "Nurse Practitioner", CategoryProvider},
	{RolePA, "Physician Assistant", CategoryProvider},

	{RoleNurse, "Registered Nurse (RN)", CategoryNursing},
	{RoleLPN, "Licensed Practical Nurse", CategoryNursing},

	{RoleCNA, "Certified Nursing Assistant", CategoryClinicalSupport},
	{RoleMA, "Medical Assistant", CategoryClinicalSupport},
	{RoleCCMA, "Certified Clinical Medical Assistant", CategoryClinicalSupport},
	{RoleTech, "Patient Care Tech / Clinical Assistant", CategoryClinicalSupport},

	{RoleMedStudent, "Medical Student", CategoryStudent},
	{RoleScribe, "Medical Scribe", CategoryDocumentation},

	{RoleLabTech, "Laboratory Technician", CategoryDiagnostic},
	{RoleLabAdmin, "Lab Manager or Lab Director", CategoryDiagnostic},
	{RolePharmacist, "Pharmacist", CategoryTherapeutic},
	{RolePharmacyTech, "Pharmacy Technician", CategoryTherapeutic},
	{RoleRadiologyTech, "Radiologic Technologist", CategoryDiagnostic},
	{RoleRadiologist, "Radiologist", CategoryDiagnostic},
	{RoleRespiratoryTherapist, "RT / Respiratory Care", CategoryTherapeutic},

	{RoleSocialWorker, "Social Worker / Discharge Planner", CategoryCareCoordination},
	{RoleCaseManager, "Case Manager", CategoryCareCoordination},
	{RoleDietitian, "Dietitian / Nutritionist", CategoryCareCoordination},

	{RoleRegistration, "Front Desk / Intake Staff", CategoryAdminSupport},
	{RoleBilling, "Billing / Coding / Revenue Cycle", CategoryAdminSupport},

	{RoleTransport, "Patient Transporter", CategoryOperations},
	{RoleSecurity, "Hospital Security", CategoryOperations},
	{RoleITSupport, "IT / Tech Support", CategoryOperations},
	{RoleHousekeeping, "Environmental Services", CategoryOperations},

	{RoleVisitor, "Limited or view-only access", CategorySpecial},
	{RoleResearcher, "Academic/clinical research access", CategorySpecial},

	{RolePending, "Pending Approval", CategoryUnassigned},
}

var definitionsByRole = func() map[Role]RoleDefinition {
	m := make(map[Role]RoleDefinition, len(roleDefinitions))
	for _, def := range roleDefinitions {
		m[def.Role] = def
	}
	return m
}()

// ParseRole converts a stored role string into a Role. Matching is case-insensitive and
// surrounding whitespace is ignored; anything outside the known set becomes RoleUnknown.
func ParseRole(s string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := definitionsByRole[r]; ok {
		return r
	}
	return RoleUnknown
}

// IsValid reports whether r is one of the known roles
func (r Role) IsValid() bool {
	_, ok := definitionsByRole[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// AllRoles returns every known role in display order
func AllRoles() []Role {
	roles := make([]Role, 0, len(roleDefinitions))
	for _, def := range roleDefinitions {
		roles = append(roles, def.Role)
	}
	return roles
}

// DisplayName returns the human-readable role name, or the raw role string when unknown.
func DisplayName(r Role) string {
	if def, ok := definitionsByRole[r]; ok {
		return def.DisplayName
	}
	return string(r)
}

// CategoryOf returns the display category for r
func CategoryOf(r Role) (Category, bool) {
	def, ok := definitionsByRole[r]
	return def.Category, ok
}

// Categories returns every category in display order
func Categories() []Category {
	return []Category{
		CategoryAdministrative,
		CategoryProvider,
		CategoryNursing,
		CategoryClinicalSupport,
		CategoryStudent,
		CategoryDocumentation,
		CategoryDiagnostic,
		CategoryTherapeutic,
		CategoryCareCoordination,
		CategoryAdminSupport,
		CategoryOperations,
		CategorySpecial,
		CategoryUnassigned,
	}
}

// RolesByCategory groups the known roles by category, preserving display order within each group.
func RolesByCategory() map[Category][]RoleDefinition {
	out := make(map[Category][]RoleDefinition)
	for _, def := range roleDefinitions {
		out[def.Category] = append(out[def.Category], def)
	}
	return out
}
