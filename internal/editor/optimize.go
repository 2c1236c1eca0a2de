package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"shipnorth/internal/backend"
	"shipnorth/internal/events"
	"shipnorth/internal/metrics"
	"shipnorth/internal/model"
)

// Optimize sends the current stops and options to the external generator and
// replaces stops and totals with its answer. A newer call cancels an older
// in-flight one; only the latest call's response is applied and the older
// call returns ErrSuperseded.
func (s *Session) Optimize(ctx context.Context) (model.RouteData, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.RouteData{}, ErrSessionClosed
	}
	if s.optCancel != nil {
		s.optCancel()
	}
	s.optGen++
	gen := s.optGen
	octx, cancel := context.WithCancel(ctx)
	s.optCancel = cancel
	req := s.generateRequestLocked(false)
	s.mu.Unlock()
	defer cancel()

	start := time.Now()
	gr, err := s.backend.GenerateRoute(octx, req)

	s.mu.Lock()
	defer s.unlock()
	if gen != s.optGen {
		metrics.OptimizeRuns.WithLabelValues("superseded").Inc()
		log.Printf("[SESSION] optimize superseded id=%s gen=%d", s.id, gen)
		return model.RouteData{}, ErrSuperseded
	}
	s.optCancel = nil
	if err != nil {
		metrics.OptimizeRuns.WithLabelValues("failed").Inc()
		log.Printf("[SESSION] optimize id=%s load=%s dur=%dms err=%v", s.id, req.LoadID, time.Since(start).Milliseconds(), err)
		return model.RouteData{}, fmt.Errorf("optimize route for load %s: %w", req.LoadID, err)
	}

	stops := make([]model.RouteStop, len(gr.Stops))
	known := map[string]bool{}
	for _, st := range req.Stops {
		known[st.ID] = st.ID != ""
	}
	for i, st := range gr.Stops {
		// echoed ids of stops sent in this request survive, once each
		if known[st.ID] {
			known[st.ID] = false
		} else {
			st.ID = uuid.NewString()
		}
		stops[i] = st
	}
	s.route.Stops = stops
	s.route.TotalDistance = gr.TotalDistance
	s.route.EstimatedDuration = gr.EstimatedDuration
	s.route.OptimizationScore = gr.OptimizationScore
	s.route.LastModified = s.now().UTC()
	metrics.OptimizeRuns.WithLabelValues("applied").Inc()
	log.Printf("[SESSION] optimized id=%s load=%s stops=%d km=%.1f score=%.2f dur=%dms",
		s.id, req.LoadID, len(stops), gr.TotalDistance, gr.OptimizationScore, time.Since(start).Milliseconds())
	s.routeEventLocked(events.RouteOptimized)
	return s.route.Clone(), nil
}

// Save persists the route on the backend. A route that already has an id is
// activated; otherwise it is generated with save set and the returned id is
// adopted. The draft snapshot is stored afterwards.
func (s *Session) Save(ctx context.Context) (model.RouteData, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.RouteData{}, ErrSessionClosed
	}
	routeID := s.route.ID
	req := s.generateRequestLocked(true)
	s.mu.Unlock()

	var newID string
	var status model.RouteStatus
	if routeID != "" {
		if err := s.backend.ActivateRoute(ctx, routeID); err != nil {
			return model.RouteData{}, fmt.Errorf("activate route %s: %w", routeID, err)
		}
		newID, status = routeID, model.RouteActive
	} else {
		gr, err := s.backend.GenerateRoute(ctx, req)
		if err != nil {
			return model.RouteData{}, fmt.Errorf("save route for load %s: %w", req.LoadID, err)
		}
		if gr.RouteID == "" {
			return model.RouteData{}, fmt.Errorf("save route for load %s: %w: route id missing", req.LoadID, backend.ErrMalformedResponse)
		}
		newID, status = gr.RouteID, model.RouteDraft
	}

	s.mu.Lock()
	s.route.ID = newID
	s.route.Status = status
	s.route.LastModified = s.now().UTC()
	saved := s.route.Clone()
	s.routeEventLocked(events.RouteSaved)
	s.unlock()

	log.Printf("[SESSION] saved id=%s load=%s route=%s status=%s", s.id, saved.LoadID, saved.ID, saved.Status)
	if s.store != nil {
		if err := s.store.SaveDraft(ctx, saved); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[SESSION] store draft id=%s load=%s err=%v", s.id, saved.LoadID, err)
		}
	}
	return saved, nil
}

func (s *Session) generateRequestLocked(save bool) backend.GenerateRequest {
	req := backend.GenerateRequest{
		LoadID:  s.route.LoadID,
		Options: s.options,
		Stops:   make([]backend.StopPayload, 0, len(s.route.Stops)),
		Save:    save,
	}
	for _, st := range s.route.Stops {
		p := backend.StopPayload{
			ID:          st.ID,
			Address:     st.Address,
			City:        st.City,
			Province:    st.Province,
			Packages:    append([]string{}, st.Packages...),
			Status:      st.Status,
			Coordinates: st.Coordinates,
			Notes:       st.Notes,
		}
		if st.EstimatedArrival != nil {
			t := *st.EstimatedArrival
			p.EstimatedArrival = &t
		}
		req.Stops = append(req.Stops, p)
	}
	if s.options.PreserveOrder {
		req.CustomOrder = cityOrder(s.route.Stops)
	}
	return req
}

// cityOrder lists stop cities in visit order, collapsing consecutive repeats.
func cityOrder(stops []model.RouteStop) []string {
	var out []string
	for _, st := range stops {
		if st.City == "" {
			continue
		}
		if len(out) > 0 && out[len(out)-1] == st.City {
			continue
		}
		out = append(out, st.City)
	}
	return out
}
