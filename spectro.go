package spectroctl

import "time"

// Power-converter lifecycle states as reported in the STATE parameter's
// PC field.
const (
	StateOff       = "OFF"
	StateOnStandby = "ON_STANDBY"
	StateIdle      = "IDLE"
	StateArmed     = "ARMED"
	StateRunning   = "RUNNING"
	StateUnknown   = "UNKNOWN"
)

// Reference-function types. CTRIM is a timed current ramp (dipole); PLEP is a
// piecewise-linear endpoint profile (quadrupole).
const (
	FuncCTRIM = "CTRIM"
	FuncPLEP  = "PLEP"
)

// PCState is the gateway's snapshot of one power converter.
type PCState struct {
	Device       string    `json:"device"`
	PC           string    `json:"pc"` // OFF | ON_STANDBY | IDLE | ARMED | RUNNING | UNKNOWN
	MeasuredA    float64   `json:"measured_a"`
	RefFinalA    float64   `json:"ref_final_a,omitempty"`
	RefDurationS float64   `json:"ref_duration_s,omitempty"`
	FuncType     string    `json:"func_type,omitempty"` // CTRIM | PLEP
	UpdatedAt    time.Time `json:"updated_at"`
}

// LogbookEvent is one audit entry appended when an operator action changes a
// machine setting.
type LogbookEvent struct {
	EventID    string    `json:"event_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Author     string    `json:"author,omitempty"`
	Text       string    `json:"text"`
	Metadata   any       `json:"metadata,omitempty"`
}

// Operator is a gateway account allowed to read and write parameters.
type Operator struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // never serialized
}
