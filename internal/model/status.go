package model

import (
	"fmt"
	"strings"
)

type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusAssigned   RequestStatus = "assigned"
	StatusInProgress RequestStatus = "in_progress"
	StatusCompleted  RequestStatus = "completed"
	StatusCancelled  RequestStatus = "cancelled"
)

// transitions lists the allowed (from, to) pairs. Terminal statuses have no entry.
var transitions = map[RequestStatus][]RequestStatus{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanAssign reports whether a task in status cur may be (re)assigned to a
// collector. Only pending tasks and already assigned ones qualify.
func CanAssign(cur RequestStatus) bool {
	return cur == StatusAssigned || CanTransition(cur, StatusAssigned)
}

// TaskFollows reports whether a collector task in status task moves along when
// its request moves to to. Terminal request statuses end every live task; a
// started request starts its assigned task.
func TaskFollows(task, to RequestStatus) bool {
	switch {
	case to.Terminal():
		return !task.Terminal()
	case to == StatusInProgress:
		return task == StatusAssigned
	}
	return false
}

// ParseStatus accepts the canonical names plus "in-progress".
func ParseStatus(s string) (RequestStatus, error) {
	st := RequestStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !st.Valid() {
		return "", fmt.Errorf("unknown request status %q", s)
	}
	return st, nil
}

// InvalidTransitionError is returned when a status change is not in the transition table.
type InvalidTransitionError struct {
	ID   string
	From RequestStatus
	To   RequestStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition for %s: %s -> %s", e.ID, e.From, e.To)
}

type WasteType string

const (
	WasteOrganic WasteType = "organic"
	WastePlastic WasteType = "plastic"
	WasteMetal   WasteType = "metal"
	WasteGlass   WasteType = "glass"
	WasteMixed   WasteType = "mixed"
	WasteEWaste  WasteType = "ewaste"
	WastePaper   WasteType = "paper"
)

var WasteTypes = []WasteType{WasteOrganic, WastePlastic, WasteMetal, WasteGlass, WasteMixed, WasteEWaste, WastePaper}

// ParseWasteType is case-insensitive and maps "e-waste" to WasteEWaste.
func ParseWasteType(s string) (WasteType, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "e-waste" || v == "e_waste" {
		v = string(WasteEWaste)
	}
	for _, t := range WasteTypes {
		if string(t) == v {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown waste type %q", s)
}

type Volume string

const (
	VolumeSmall  Volume = "small"
	VolumeMedium Volume = "medium"
	VolumeLarge  Volume = "large"
)

type Urgency string

const (
	UrgencyStandard  Urgency = "standard"
	UrgencyUrgent    Urgency = "urgent"
	UrgencyEmergency Urgency = "emergency"
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
)

type CollectorStatus string

const (
	CollectorAvailable CollectorStatus = "available"
	CollectorBusy      CollectorStatus = "busy"
	CollectorOffline   CollectorStatus = "offline"
	CollectorOnBreak   CollectorStatus = "on_break"
)
