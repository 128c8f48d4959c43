// Package extraction defines the systematic-review extraction record: the
// ordered catalog of sections and fields, the JSON Schema sent to the model,
// and small helpers for reading decoded records.
package extraction

// SchemaName is the name carried in the structured-output envelope.
const SchemaName = "systematic_review_extraction"

// SummaryKey is the top-level free-text summary field.
const SummaryKey = "study_summary"

// Field is one leaf of the extraction record.
type Field struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	// IntegerOrString allows a bare count as well as free text.
	IntegerOrString bool `json:"integer_or_string,omitempty"`
}

// Section groups related fields under one object key.
type Section struct {
	Key    string  `json:"key"`
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

func f(key, label string) Field { return Field{Key: key, Label: label} }

var sections = []Section{
	{
		Key:   "study_information",
		Title: "Study Information",
		Fields: []Field{
			{Key: "study", Label: "Study (author, year)", Description: "Author(s) and year of publication"},
			f("design", "Design"),
			{Key: "number_of_patients", Label: "Number of patients", IntegerOrString: true},
			{Key: "number_of_controls", Label: "Number of controls", IntegerOrString: true},
			f("country", "Country"),
		},
	},
	{
		Key:   "patient_demographics",
		Title: "Patient Demographics",
		Fields: []Field{
			f("current_age", "Current age"),
			f("age_at_onset", "Age at onset"),
			f("age_at_treatment_initiation", "Age at treatment initiation"),
			f("sex", "Sex"),
			f("family_history", "Family History"),
			f("parental_consanguinity", "Parental consanguinity"),
		},
	},
	{
		Key:   "intervention_and_duration",
		Title: "Intervention and Duration",
		Fields: []Field{
			f("intervention", "Intervention"),
			f("duration_or_replacement_time", "Duration / Replacement time"),
		},
	},
	{
		Key:   "outcomes",
		Title: "Outcomes",
		Fields: []Field{
			f("motor_outcome", "Motor outcome"),
			f("is_primary_outcome", "Primary outcome?"),
			f("result_magnitude_significance", "Result (magnitude, significance)"),
		},
	},
	{
		Key:   "diagnostic_and_imaging_tests",
		Title: "Diagnostic and Imaging Tests",
		Fields: []Field{
			f("molecular", "Molecular"),
			f("specific_biochemical_test", "Specific Biochemical test"),
			f("biochemical_test_after_treatment", "Biochemical test after treatment"),
			f("general_relevant_blood_test", "General relevant blood test"),
			f("brain_ct", "Brain CT"),
			f("brain_mri", "Brain MRI"),
			f("spinal_mri", "Spinal MRI"),
			f("electroneuromyography", "Electroneuromyography"),
			f("electroencephalogram", "Electroencephalogram"),
		},
	},
	{
		Key:   "clinical_features",
		Title: "Clinical Features",
		Fields: []Field{
			f("developmental_history", "Developmental History"),
			f("cognitive_impairment", "Cognitive Impairment"),
			f("neuropsychiatric", "Neuropsychiatric"),
			f("epileptic_seizures", "Epileptic Seizures"),
			f("movement_disorders", "Movement Disorders"),
			f("cerebellar_ataxia", "Cerebellar Ataxia"),
			f("sensory_ataxia", "Sensory Ataxia"),
			f("muscle_strength", "Muscle Strength"),
			f("pyramidal_signs", "Pyramidal Signs"),
			f("sensory_symptoms", "Sensory Symptoms"),
			f("static_balance", "Static Balance"),
			f("gait", "Gait"),
			f("wheelchair_bound", "Wheelchair-Bound"),
			f("visual_disturbances", "Visual Disturbances"),
			f("hearing_impairment", "Hearing Impairment"),
			f("eye_movements", "Eye Movements"),
			f("dysarthria", "Dysarthria"),
			f("vertigo", "Vertigo"),
			f("ovr", "OVR"),
			f("dysphagia", "Dysphagia"),
			f("skin", "Skin"),
			f("gastrointestinal", "Gastrointestinal"),
			f("endocrinological", "Endocrinological"),
			f("cardiac", "Cardiac"),
			f("genitourinary", "Genitourinary"),
			f("orthopedic", "Orthopedic"),
			f("other_important_information", "Other important information"),
		},
	},
	{
		Key:   "methodological_quality",
		Title: "Methodological Quality",
		Fields: []Field{
			f("adherence_to_protocol", "Adherence to protocol?"),
			f("itt_analysis", "ITT analysis?"),
			f("missing_patient_data_over_10_20_percent", "Missing patient data (>10–20%)?"),
			f("randomization_bias", "Randomization bias"),
			f("protocol_deviations", "Protocol deviations"),
			f("missing_outcomes", "Missing outcomes"),
			f("measurement_bias", "Measurement bias"),
			f("selective_reporting_of_outcomes", "Selective reporting"),
			f("representative_population", "Representative population?"),
			f("representative_intervention", "Representative intervention?"),
			f("representative_outcomes", "Representative outcomes?"),
			f("conflicts_of_interest", "Conflicts of interest?"),
			f("risk_of_bias_and_limitations", "Risk of bias & limitations"),
			f("indirect_evidence", "Indirect evidence"),
			f("publication_bias", "Publication bias"),
			f("other_considerations", "Other considerations"),
		},
	},
	{
		Key:   "evidence_frameworks",
		Title: "Evidence Frameworks",
		Fields: []Field{
			f("grade_system", "GRADE system"),
			f("pico", "PICO"),
			f("prisma_flow_or_criteria", "PRISMA (flow/criteria)"),
			f("cochrane_risk_of_bias", "Cochrane Risk of Bias"),
		},
	},
}

// SummaryTitle heads the free-text summary section.
const SummaryTitle = "Study Summary"

// Sections returns the ordered catalog of object sections. The summary is
// not a section; see SummaryKey.
func Sections() []Section {
	out := make([]Section, len(sections))
	for i, s := range sections {
		out[i] = Section{Key: s.Key, Title: s.Title, Fields: append([]Field(nil), s.Fields...)}
	}
	return out
}

// TopLevelKeys returns every root key in schema order, ending with the summary.
func TopLevelKeys() []string {
	keys := make([]string, 0, len(sections)+1)
	for _, s := range sections {
		keys = append(keys, s.Key)
	}
	return append(keys, SummaryKey)
}
