package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// SyncType identifies what triggered a sync run and how its window is computed.
type SyncType string

const (
	SyncFull        SyncType = "full"
	SyncIncremental SyncType = "incremental"
	SyncManual      SyncType = "manual"
	SyncAuto        SyncType = "auto"
)

// Valid reports whether t is a known sync type.
func (t SyncType) Valid() bool {
	switch t {
	case SyncFull, SyncIncremental, SyncManual, SyncAuto:
		return true
	}
	return false
}

// ParseSyncType converts user input into a SyncType. Empty input means auto.
func ParseSyncType(s string) (SyncType, error) {
	if s == "" {
		return SyncAuto, nil
	}
	t := SyncType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown sync type %q", s)
	}
	return t, nil
}

// RunStatus is the lifecycle state of a sync run log entry.
type RunStatus string

const (
	RunStarted   RunStatus = "iniciado"
	RunCompleted RunStatus = "completado"
	RunFailed    RunStatus = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// ContractStatus is the state of a contract in the drafting workflow.
type ContractStatus string

const (
	ContractDraft     ContractStatus = "borrador"
	ContractInReview  ContractStatus = "validacion"
	ContractValidated ContractStatus = "validado"
	ContractSent      ContractStatus = "enviado"
)

// DayLayout is the storage format for calendar days.
const DayLayout = "2006-01-02"

// FormatDay renders t as a calendar day in its own location.
func FormatDay(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay parses a calendar day at midnight in loc.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DayLayout, s, loc)
}

// RawJSON stores an opaque JSON document as text.
type RawJSON []byte

func (r RawJSON) Value() (driver.Value, error) {
	if len(r) == 0 {
		return "null", nil
	}
	return string(r), nil
}

func (r *RawJSON) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*r = nil
	case []byte:
		*r = append((*r)[:0], v...)
	case string:
		*r = RawJSON(v)
	default:
		return errors.New("failed to scan RawJSON")
	}
	return nil
}

// MarshalJSON keeps the document verbatim when the model is serialized.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON copies the raw document.
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	if r == nil {
		return errors.New("RawJSON: UnmarshalJSON on nil pointer")
	}
	*r = append((*r)[:0], data...)
	return nil
}
