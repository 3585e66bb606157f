package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Core domain types shared by the walker client, the domain store and the fixture server.

type GeoPoint struct {
	Lat float64 `json:"lat" yaml:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" yaml:"lng" validate:"gte=-180,lte=180"`
}

// PickupRequest is a resident's request to have waste collected.
type PickupRequest struct {
	ID         string        `json:"id" yaml:"id"`
	ResidentID string        `json:"residentId,omitempty" yaml:"residentId"`
	WasteType  WasteType     `json:"wasteType" yaml:"wasteType"`
	Volume     Volume        `json:"volume,omitempty" yaml:"volume"`
	VolumeKg   float64       `json:"volumeKg,omitempty" yaml:"volumeKg"`
	Status     RequestStatus `json:"status" yaml:"status"`
	Location   *GeoPoint     `json:"location,omitempty" yaml:"location"`
	Address    string        `json:"address,omitempty" yaml:"address"`
	Notes      string        `json:"notes,omitempty" yaml:"notes"`
	Urgency    Urgency       `json:"urgency,omitempty" yaml:"urgency"`
	CreatedAt  time.Time     `json:"createdAt" yaml:"createdAt"`
}

// CollectorTask is the unit of work handed to a collector for one pickup request.
type CollectorTask struct {
	ID            string        `json:"id" yaml:"id"`
	RequestID     string        `json:"requestId" yaml:"requestId"`
	CollectorID   string        `json:"collectorId,omitempty" yaml:"collectorId"`
	Status        RequestStatus `json:"status" yaml:"status"`
	EstimatedTime string        `json:"estimatedTime,omitempty" yaml:"estimatedTime"`
	Route         []GeoPoint    `json:"route,omitempty" yaml:"route"`
	DistanceKm    float64       `json:"distanceKm,omitempty" yaml:"distanceKm"`
}

// SystemMetrics is a read-only aggregate snapshot; it has no identity.
type SystemMetrics struct {
	TotalRequests     int     `json:"totalRequests"`
	CompletedRequests int     `json:"completedRequests"`
	ActiveCollectors  int     `json:"activeCollectors"`
	RecyclingRate     Percent `json:"recyclingRate"`
	MonthlyGrowth     Percent `json:"monthlyGrowth"`
}

type Collector struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name,omitempty" yaml:"name"`
	Status   CollectorStatus `json:"status" yaml:"status"`
	Approved bool            `json:"approved" yaml:"approved"`
	Active   bool            `json:"active" yaml:"active"`
}

// Percent is a percentage value. Remote payloads carry it either as a number
// (75, 12.5) or as a display string ("75%", "+12%").
type Percent float64

func (p Percent) String() string {
	return strconv.FormatFloat(float64(p), 'f', -1, 64) + "%"
}

func (p Percent) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(p))
}

func (p *Percent) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*p = Percent(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("percent: %w", err)
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("percent %q: %w", s, err)
	}
	*p = Percent(f)
	return nil
}

// PickupRequestInput is what a resident submits to create a pickup request.
type PickupRequestInput struct {
	ResidentID string    `json:"residentId,omitempty"`
	WasteType  WasteType `json:"wasteType" validate:"required,oneof=organic plastic metal glass mixed ewaste paper"`
	Volume     Volume    `json:"volume,omitempty" validate:"omitempty,oneof=small medium large"`
	VolumeKg   float64   `json:"volumeKg,omitempty" validate:"gte=0,lte=50"`
	Location   *GeoPoint `json:"location,omitempty"`
	Address    string    `json:"address,omitempty" validate:"max=500"`
	Notes      string    `json:"notes,omitempty" validate:"max=2000"`
	Urgency    Urgency   `json:"urgency,omitempty" validate:"omitempty,oneof=standard urgent emergency low medium high"`
}

// Payload renders the input as a walker context.
func (in PickupRequestInput) Payload() map[string]any {
	out := map[string]any{"wasteType": string(in.WasteType)}
	if in.ResidentID != "" {
		out["residentId"] = in.ResidentID
	}
	if in.Volume != "" {
		out["volume"] = string(in.Volume)
	}
	if in.VolumeKg > 0 {
		out["volumeKg"] = in.VolumeKg
	}
	if in.Location != nil {
		out["location"] = map[string]any{"lat": in.Location.Lat, "lng": in.Location.Lng}
	}
	if in.Address != "" {
		out["address"] = in.Address
	}
	if in.Notes != "" {
		out["notes"] = in.Notes
	}
	if in.Urgency != "" {
		out["urgency"] = string(in.Urgency)
	}
	return out
}
