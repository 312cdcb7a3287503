package domain

// MeasurementType identifies a kind of electrical test reading.
type MeasurementType string

const (
	MeasurementContinuity  MeasurementType = "continuity"
	MeasurementInsulation  MeasurementType = "insulation"
	MeasurementEarthLoop   MeasurementType = "earth_loop"
	MeasurementPolarity    MeasurementType = "polarity"
	MeasurementRCDTripTime MeasurementType = "rcd_trip_time"
	MeasurementVoltage     MeasurementType = "voltage"
	MeasurementFunctional  MeasurementType = "functional"
)

// MeasurementTypes lists every known measurement type in display order.
var MeasurementTypes = []MeasurementType{
	MeasurementContinuity,
	MeasurementInsulation,
	MeasurementEarthLoop,
	MeasurementPolarity,
	MeasurementRCDTripTime,
	MeasurementVoltage,
	MeasurementFunctional,
}

// Valid reports whether t is one of the known measurement types.
func (t MeasurementType) Valid() bool {
	for _, mt := range MeasurementTypes {
		if mt == t {
			return true
		}
	}
	return false
}

// Numeric reports whether readings of this type are numeric values that
// can be judged against a standard. Polarity and functional checks are
// confirmations, not readings.
func (t MeasurementType) Numeric() bool {
	return t.Valid() && t != MeasurementPolarity && t != MeasurementFunctional
}

// MeasurementStandard is a read-only limit from the standards catalog.
// A nil bound means no limit on that side.
type MeasurementStandard struct {
	MeasurementType   MeasurementType `json:"measurement_type" yaml:"measurement_type"`
	CircuitType       string          `json:"circuit_type,omitempty" yaml:"circuit_type,omitempty"`
	CircuitRating     string          `json:"circuit_rating,omitempty" yaml:"circuit_rating,omitempty"`
	MinAcceptable     *float64        `json:"min_acceptable,omitempty" yaml:"min_acceptable,omitempty"`
	MaxAcceptable     *float64        `json:"max_acceptable,omitempty" yaml:"max_acceptable,omitempty"`
	StandardReference string          `json:"standard_reference" yaml:"standard_reference"`
}

type ValidationStatus string

const (
	StatusPass    ValidationStatus = "pass"
	StatusWarning ValidationStatus = "warning"
	StatusFail    ValidationStatus = "fail"
	StatusUnknown ValidationStatus = "unknown"
)

// ValidationResult is the verdict for a single reading.
type ValidationResult struct {
	Pass              bool             `json:"pass"`
	Status            ValidationStatus `json:"status" enum:"pass,warning,fail,unknown"`
	Message           string           `json:"message"`
	StandardReference string           `json:"standard_reference,omitempty"`
}

type CertificateType string

const (
	CertificateEIC        CertificateType = "eic"
	CertificateMinorWorks CertificateType = "minor_works"
	CertificateEICR       CertificateType = "eicr"
	CertificatePAT        CertificateType = "pat"
)

var CertificateTypes = []CertificateType{CertificateEIC, CertificateMinorWorks, CertificateEICR, CertificatePAT}

func (c CertificateType) Valid() bool {
	for _, ct := range CertificateTypes {
		if ct == c {
			return true
		}
	}
	return false
}

// InspectionResult is the outcome recorded against an inspection item.
// The empty value means the item has not been inspected.
type InspectionResult string

const (
	ResultNone       InspectionResult = ""
	ResultPass       InspectionResult = "pass"
	ResultFail       InspectionResult = "fail"
	ResultNA         InspectionResult = "n/a"
	ResultLimitation InspectionResult = "limitation"
)

// Valid reports whether r is a recorded result or the unset value.
func (r InspectionResult) Valid() bool {
	switch r {
	case ResultNone, ResultPass, ResultFail, ResultNA, ResultLimitation:
		return true
	}
	return false
}

// RequiresNotes reports whether an item with this result must explain itself.
func (r InspectionResult) RequiresNotes() bool {
	return r == ResultFail || r == ResultLimitation
}

type InspectionItem struct {
	ItemCode string           `json:"item_code" yaml:"code"`
	Category string           `json:"category" yaml:"category"`
	Item     string           `json:"item" yaml:"item"`
	Result   InspectionResult `json:"result,omitempty" yaml:"result,omitempty" enum:"pass,fail,n/a,limitation"`
	Notes    string           `json:"notes,omitempty" yaml:"notes,omitempty"`
}

const (
	TestStatusInProgress = "in_progress"
	TestStatusComplete   = "complete"
)

// ElectricalTest is the test record a checklist and its measurements belong to.
type ElectricalTest struct {
	ID              string          `json:"id"`
	CertificateType CertificateType `json:"certificate_type" enum:"eic,minor_works,eicr,pat"`
	Site            string          `json:"site,omitempty"`
	Status          string          `json:"status" enum:"in_progress,complete"`
	CreatedAt       string          `json:"created_at" format:"date-time"`
	UpdatedAt       string          `json:"updated_at" format:"date-time"`
	CompletedAt     *string         `json:"completed_at,omitempty" format:"date-time"`
}

// Circuit carries the attributes used as standards lookup keys.
type Circuit struct {
	ID                      string `json:"id"`
	TestID                  string `json:"test_id"`
	Ref                     string `json:"ref"`
	Description             string `json:"description,omitempty"`
	CircuitType             string `json:"circuit_type,omitempty"`
	OvercurrentDeviceType   string `json:"overcurrent_device_type,omitempty"`
	OvercurrentDeviceRating string `json:"overcurrent_device_rating,omitempty"`
	CreatedAt               string `json:"created_at" format:"date-time"`
}

type Measurement struct {
	ID         string           `json:"id"`
	TestID     string           `json:"test_id"`
	CircuitID  string           `json:"circuit_id"`
	Type       MeasurementType  `json:"measurement_type"`
	Value      float64          `json:"value"`
	Result     ValidationResult `json:"result"`
	RecordedAt string           `json:"recorded_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	TestID     string `json:"test_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
