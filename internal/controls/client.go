// Package controls speaks the parameter interface of the accelerator
// middleware gateway: named device parameters ("DEVICE/FIELD") that can be
// read and written, plus the operator logbook. The vendor middleware itself
// is external; this package only fixes the wire contract and ships an HTTP
// client for gateways that expose it (pcsimd included).
package controls

import (
	"context"
	"errors"
	"strconv"
)

// Client errors. Callers branch on these to tell a refused command from a
// gateway that cannot be reached at all.
var (
	ErrUnreachable  = errors.New("control gateway unreachable")
	ErrUnauthorized = errors.New("control gateway rejected credentials")
	ErrRejected     = errors.New("control gateway rejected request")
)

// ValueKind discriminates the payload of a Value.
type ValueKind string

const (
	KindFloat  ValueKind = "float"
	KindString ValueKind = "string"
	KindRecord ValueKind = "record"
)

// Value is one parameter reading or setting. Scalars cover measurement and
// reference fields; records cover composite parameters such as STATE, whose
// PC field carries the converter lifecycle state.
type Value struct {
	Kind   ValueKind         `json:"kind"`
	Float  float64           `json:"float,omitempty"`
	Str    string            `json:"str,omitempty"`
	Record map[string]string `json:"record,omitempty"`
}

// Float64 returns a scalar float value.
func Float64(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// String returns a scalar string value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// Record returns a composite value with named string fields.
func Record(fields map[string]string) Value { return Value{Kind: KindRecord, Record: fields} }

// AsFloat extracts a numeric reading. String values that parse as floats are
// accepted; gateways differ on how they type scalar reads.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindFloat:
		return v.Float, true
	case KindString:
		f, err := strconv.ParseFloat(v.Str, 64)
		return f, err == nil
	}
	return 0, false
}

// PCStatus extracts the converter lifecycle state from a STATE read. Returns
// UNKNOWN when the value carries no PC field.
func (v Value) PCStatus() string {
	if v.Kind == KindRecord {
		if s, ok := v.Record["PC"]; ok && s != "" {
			return s
		}
		return "UNKNOWN"
	}
	if v.Kind == KindString && v.Str != "" {
		return v.Str
	}
	return "UNKNOWN"
}

// ParameterClient is the injected handle every operation receives; there is
// no package-level session. Implementations authenticate once when opened
// and stay valid until Close.
type ParameterClient interface {
	GetParameter(ctx context.Context, name string) (Value, error)
	SetParameter(ctx context.Context, name string, v Value) error
	Close() error
}
