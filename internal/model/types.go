package model

import "time"

// Core domain types for route editing sessions

type StopStatus string

const (
    StopPending   StopStatus = "pending"
    StopCurrent   StopStatus = "current"
    StopCompleted StopStatus = "completed"
)

// Valid reports whether s is one of the known stop statuses.
func (s StopStatus) Valid() bool {
    switch s {
    case StopPending, StopCurrent, StopCompleted:
        return true
    }
    return false
}

type RouteStatus string

const (
    RouteDraft     RouteStatus = "draft"
    RouteActive    RouteStatus = "active"
    RouteCompleted RouteStatus = "completed"
)

func (s RouteStatus) Valid() bool {
    switch s {
    case RouteDraft, RouteActive, RouteCompleted:
        return true
    }
    return false
}

type GeoPoint struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

type RouteStop struct {
    ID               string     `json:"id"`
    Address          string     `json:"address"`
    City             string     `json:"city,omitempty"`
    Province         string     `json:"province,omitempty"`
    Packages         []string   `json:"packages"`
    EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`
    Status           StopStatus `json:"status"`
    Coordinates      *GeoPoint  `json:"coordinates,omitempty"`
    Notes            string     `json:"notes,omitempty"`
}

// HasPackage reports whether the stop carries package id.
func (s RouteStop) HasPackage(id string) bool {
    for _, p := range s.Packages {
        if p == id { return true }
    }
    return false
}

// RouteData is the route owned by an editing session until saved.
type RouteData struct {
    ID                string      `json:"id,omitempty"`
    LoadID            string      `json:"loadId"`
    Status            RouteStatus `json:"status"`
    TotalDistance     float64     `json:"totalDistance"`     // km
    EstimatedDuration float64     `json:"estimatedDuration"` // minutes
    OptimizationScore float64     `json:"optimizationScore"`
    Stops             []RouteStop `json:"stops"`
    LastModified      time.Time   `json:"lastModified"`
}

// Clone returns a deep copy safe to hand out of a session.
func (r RouteData) Clone() RouteData {
    out := r
    out.Stops = make([]RouteStop, len(r.Stops))
    for i, s := range r.Stops {
        out.Stops[i] = s.Clone()
    }
    return out
}

func (s RouteStop) Clone() RouteStop {
    out := s
    out.Packages = append([]string{}, s.Packages...)
    if s.EstimatedArrival != nil {
        t := *s.EstimatedArrival
        out.EstimatedArrival = &t
    }
    if s.Coordinates != nil {
        c := *s.Coordinates
        out.Coordinates = &c
    }
    return out
}

// OptimizeOptions are the flags forwarded to the external route generator.
type OptimizeOptions struct {
    MaxDrivingHours           float64 `json:"maxDrivingHours" yaml:"maxDrivingHours"`
    PrioritizeDeliveryWindows bool    `json:"prioritizeDeliveryWindows" yaml:"prioritizeDeliveryWindows"`
    FuelEfficiency            bool    `json:"fuelEfficiency" yaml:"fuelEfficiency"`
    TrafficChecks             bool    `json:"trafficChecks" yaml:"trafficChecks"`
    PreserveOrder             bool    `json:"preserveOrder,omitempty" yaml:"preserveOrder"`
}

// DefaultOptimizeOptions mirrors the editor's initial toggles.
func DefaultOptimizeOptions() OptimizeOptions {
    return OptimizeOptions{
        MaxDrivingHours:           10,
        PrioritizeDeliveryWindows: true,
        FuelEfficiency:            true,
        TrafficChecks:             true,
    }
}

type LegEstimate struct {
    FromStopID      string  `json:"fromStopId"`
    ToStopID        string  `json:"toStopId"`
    DistanceKm      float64 `json:"distanceKm"`
    DurationMinutes float64 `json:"durationMinutes"`
}

// RouteStats are derived figures shown next to the stop list.
type RouteStats struct {
    Stops             int     `json:"stops"`
    Packages          int     `json:"packages"`
    CompletedStops    int     `json:"completedStops"`
    TotalDistance     float64 `json:"totalDistance"`
    EstimatedDuration float64 `json:"estimatedDuration"`
    OptimizationScore float64 `json:"optimizationScore"`
}

// Package is the backend read model used for the available list.
type Package struct {
    ID             string `json:"id"`
    TrackingNumber string `json:"trackingNumber,omitempty"`
    Recipient      string `json:"recipient,omitempty"`
    Address        string `json:"address,omitempty"`
    City           string `json:"city,omitempty"`
    Province       string `json:"province,omitempty"`
    LoadID         string `json:"loadId,omitempty"`
    Status         string `json:"status,omitempty"`
}

// Location is a GPS fix for a load.
type Location struct {
    LoadID     string    `json:"loadId"`
    Lat        float64   `json:"lat"`
    Lng        float64   `json:"lng"`
    SpeedKmh   *float64  `json:"speedKmh,omitempty"`
    Heading    *float64  `json:"heading,omitempty"`
    RecordedAt time.Time `json:"recordedAt"`
}

// Request bodies for the editing API

type CreateSessionRequest struct {
    LoadID string `json:"loadId"`
}

type StopInput struct {
    Address          string     `json:"address"`
    City             string     `json:"city,omitempty"`
    Province         string     `json:"province,omitempty"`
    Packages         []string   `json:"packages,omitempty"`
    EstimatedArrival *time.Time `json:"estimatedArrival,omitempty"`
    Coordinates      *GeoPoint  `json:"coordinates,omitempty"`
    Notes            string     `json:"notes,omitempty"`
}

// StopPatch carries optional fields; nil means unchanged.
type StopPatch struct {
    Address          *string     `json:"address,omitempty"`
    City             *string     `json:"city,omitempty"`
    Province         *string     `json:"province,omitempty"`
    Packages         *[]string   `json:"packages,omitempty"`
    EstimatedArrival *time.Time  `json:"estimatedArrival,omitempty"`
    Status           *StopStatus `json:"status,omitempty"`
    Coordinates      *GeoPoint   `json:"coordinates,omitempty"`
    Notes            *string     `json:"notes,omitempty"`
}

type MoveRequest struct {
    Direction string `json:"direction"` // up, down
}

type PackageIDsRequest struct {
    PackageIDs []string `json:"packageIds"`
}

type TrackingRequest struct {
    IntervalSec int `json:"intervalSec,omitempty"`
}

// SessionView is the read model returned for a session.
type SessionView struct {
    SessionID string          `json:"sessionId"`
    Route     RouteData       `json:"route"`
    Stats     RouteStats      `json:"stats"`
    Options   OptimizeOptions `json:"options"`
    Selection []string        `json:"selection"`
    Tracking  bool            `json:"tracking"`
}
