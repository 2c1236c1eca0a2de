package backend

import (
	"fmt"
	"math"
	"strings"
	"time"

	"shipnorth/internal/model"
)

// Wire request and response shapes. Required response fields are pointers so
// their absence is detectable.

type StopPayload struct {
	ID               string           `json:"id,omitempty"`
	Address          string           `json:"address"`
	City             string           `json:"city,omitempty"`
	Province         string           `json:"province,omitempty"`
	Packages         []string         `json:"packages"`
	Status           model.StopStatus `json:"status,omitempty"`
	EstimatedArrival *time.Time       `json:"estimatedArrival,omitempty"`
	Coordinates      *model.GeoPoint  `json:"coordinates,omitempty"`
	Notes            string           `json:"notes,omitempty"`
}

type GenerateRequest struct {
	LoadID      string                `json:"loadId"`
	Options     model.OptimizeOptions `json:"options"`
	CustomOrder []string              `json:"customOrder,omitempty"`
	Stops       []StopPayload         `json:"stops"`
	Save        bool                  `json:"save"`
}

// GeneratedRoute is a validated generate result. A stop ID is set only when
// the backend echoed one.
type GeneratedRoute struct {
	RouteID           string
	TotalDistance     float64
	EstimatedDuration float64
	OptimizationScore float64
	Stops             []model.RouteStop
}

type generateResponse struct {
	RouteID           *string         `json:"routeId"`
	TotalDistance     *float64        `json:"totalDistance"`
	EstimatedDuration *float64        `json:"estimatedDuration"`
	OptimizationScore *float64        `json:"optimizationScore"`
	Stops             *[]stopResponse `json:"stops"`
}

type stopResponse struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Address          *string         `json:"address"`
	City             string          `json:"city"`
	Province         string          `json:"province"`
	Packages         []string        `json:"packages"`
	Coordinates      *model.GeoPoint `json:"coordinates"`
	EstimatedArrival *time.Time      `json:"estimatedArrival"`
	Notes            string          `json:"notes"`
}

func (r generateResponse) toRoute() (GeneratedRoute, error) {
	var out GeneratedRoute
	for name, v := range map[string]*float64{
		"totalDistance":     r.TotalDistance,
		"estimatedDuration": r.EstimatedDuration,
		"optimizationScore": r.OptimizationScore,
	} {
		if v == nil {
			return out, malformed("%s missing", name)
		}
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			return out, malformed("%s out of range: %v", name, *v)
		}
	}
	if r.Stops == nil {
		return out, malformed("stops missing")
	}
	if r.RouteID != nil {
		out.RouteID = strings.TrimSpace(*r.RouteID)
	}
	out.TotalDistance = *r.TotalDistance
	out.EstimatedDuration = *r.EstimatedDuration
	out.OptimizationScore = *r.OptimizationScore

	seen := map[string]int{}
	out.Stops = make([]model.RouteStop, 0, len(*r.Stops))
	for i, s := range *r.Stops {
		if s.Address == nil || strings.TrimSpace(*s.Address) == "" {
			return out, malformed("stop %d: address missing", i)
		}
		if s.Coordinates != nil {
			if err := checkPoint(*s.Coordinates); err != nil {
				return out, malformed("stop %d: %v", i, err)
			}
		}
		status := model.StopPending
		if s.Status != "" {
			status = model.StopStatus(s.Status)
			if !status.Valid() {
				return out, malformed("stop %d: unknown status %q", i, s.Status)
			}
		}
		pkgs := make([]string, 0, len(s.Packages))
		for _, p := range s.Packages {
			p = strings.TrimSpace(p)
			if p == "" {
				return out, malformed("stop %d: empty package id", i)
			}
			if j, dup := seen[p]; dup {
				return out, malformed("package %s on stops %d and %d", p, j, i)
			}
			seen[p] = i
			pkgs = append(pkgs, p)
		}
		out.Stops = append(out.Stops, model.RouteStop{
			ID:               strings.TrimSpace(s.ID),
			Address:          strings.TrimSpace(*s.Address),
			City:             s.City,
			Province:         s.Province,
			Packages:         pkgs,
			EstimatedArrival: s.EstimatedArrival,
			Status:           status,
			Coordinates:      s.Coordinates,
			Notes:            s.Notes,
		})
	}
	return out, nil
}

type bulkAssignRequest struct {
	PackageIDs []string `json:"packageIds"`
}

type packageUpdate struct {
	LoadID *string `json:"loadId"`
}

type packageListResponse struct {
	Packages *[]model.Package `json:"packages"`
}

func (r packageListResponse) validate() error {
	if r.Packages == nil {
		return malformed("packages missing")
	}
	for i, p := range *r.Packages {
		if strings.TrimSpace(p.ID) == "" {
			return malformed("package %d: id missing", i)
		}
	}
	return nil
}

type locationResponse struct {
	LoadID    string     `json:"loadId"`
	Lat       *float64   `json:"lat"`
	Lng       *float64   `json:"lng"`
	SpeedKmh  *float64   `json:"speedKmh"`
	Heading   *float64   `json:"heading"`
	Timestamp *time.Time `json:"timestamp"`
}

func (r locationResponse) toLocation(loadID string) (model.Location, error) {
	if r.Lat == nil || r.Lng == nil {
		return model.Location{}, malformed("lat/lng missing")
	}
	if r.Timestamp == nil {
		return model.Location{}, malformed("timestamp missing")
	}
	if err := checkPoint(model.GeoPoint{Lat: *r.Lat, Lng: *r.Lng}); err != nil {
		return model.Location{}, malformed("%v", err)
	}
	if r.LoadID != "" && r.LoadID != loadID {
		return model.Location{}, malformed("location for load %s, want %s", r.LoadID, loadID)
	}
	return model.Location{
		LoadID:     loadID,
		Lat:        *r.Lat,
		Lng:        *r.Lng,
		SpeedKmh:   r.SpeedKmh,
		Heading:    r.Heading,
		RecordedAt: r.Timestamp.UTC(),
	}, nil
}

func checkPoint(p model.GeoPoint) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lng < -180 || p.Lng > 180 {
		return fmt.Errorf("coordinates out of range: %v,%v", p.Lat, p.Lng)
	}
	return nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
