package permissions

// Capability is a named permission tag checked by chart, order and admin surfaces.
type Capability string

const (
	// System
	CapAccessAdminPanel Capability = "access_admin_panel"
	CapManageUsers      Capability = "manage_users"
	CapManageSystem     Capability = "manage_system"

	// Provider-level clinical
	CapDiagnose              Capability = "diagnose"
	CapPrescribe             Capability = "prescribe"
	CapOrderMedications      Capability = "order_medications"
	CapOrderLabs             Capability = "order_labs"
	CapOrderImaging          Capability = "order_imaging"
	CapOrderProcedures       Capability = "order_procedures"
	CapFinalizeDocumentation Capability = "finalize_documentation"

	// Nursing-level clinical
	CapDocumentAssessments   Capability = "document_assessments"
	CapRecordVitals          Capability = "record_vitals"
	CapAdministerMedications Capability = "administer_medications"
	CapInitiateProtocols     Capability = "initiate_protocols"

	// Support-level clinical
	CapRecordBasicVitals Capability = "record_basic_vitals"
	CapAssistProcedures  Capability = "assist_procedures"

	// Department-specific
	CapManageLabOrders    Capability = "manage_lab_orders"
	CapProcessLabResults  Capability = "process_lab_results"
	CapManageMedications  Capability = "manage_medications"
	CapProcessRadiology   Capability = "process_radiology"
	CapProcessRespiratory Capability = "process_respiratory"

	// Care coordination
	CapManageDischarge Capability = "manage_discharge"
	CapManageCarePlan  Capability = "manage_care_plan"
	CapManageNutrition Capability = "manage_nutrition"

	// Patient management
	CapRegisterPatients Capability = "register_patients"
	CapManageBilling    Capability = "manage_billing"

	// Documentation
	CapDocumentForProvider Capability = "document_for_provider"
	CapViewCharts          Capability = "view_charts"
	CapEditCharts          Capability = "edit_charts"

	CapAccessResearchData Capability = "access_research_data"
)

// AllCapabilities lists every capability tag
func AllCapabilities() []Capability {
	return []Capability{
		CapAccessAdminPanel, CapManageUsers, CapManageSystem,
		CapDiagnose, CapPrescribe, CapOrderMedications, CapOrderLabs, CapOrderImaging,
		CapOrderProcedures, CapFinalizeDocumentation,
		CapDocumentAssessments, CapRecordVitals, CapAdministerMedications, CapInitiateProtocols,
		CapRecordBasicVitals, CapAssistProcedures,
		CapManageLabOrders, CapProcessLabResults, CapManageMedications, CapProcessRadiology,
		CapProcessRespiratory,
		CapManageDischarge, CapManageCarePlan, CapManageNutrition,
		CapRegisterPatients, CapManageBilling,
		CapDocumentForProvider, CapViewCharts, CapEditCharts,
		CapAccessResearchData,
	}
}

// Action is a clinical action name that maps to exactly one required capability.
type Action string

const (
	ActionSignOrders         Action = "sign_orders"
	ActionCreatePrescription Action = "create_prescription"
	ActionFinalizeNote       Action = "finalize_note"
	ActionOrderLab           Action = "order_lab"
	ActionOrderImaging       Action = "order_imaging"
	ActionOrderProcedure     Action = "order_procedure"
	ActionDiagnosePatient    Action = "diagnose_patient"
	ActionDischargePatient   Action = "discharge_patient"
	ActionAdministerMed      Action = "administer_med"
)

var actionCapabilities = map[Action]Capability{
	ActionSignOrders:         CapPrescribe,
	ActionCreatePrescription: CapPrescribe,
	ActionFinalizeNote:       CapFinalizeDocumentation,
	ActionOrderLab:           CapOrderLabs,
	ActionOrderImaging:       CapOrderImaging,
	ActionOrderProcedure:     CapOrderProcedures,
	ActionDiagnosePatient:    CapDiagnose,
	ActionDischargePatient:   CapManageDischarge,
	ActionAdministerMed:      CapAdministerMedications,
}
