// Package editor holds route editing sessions. A Session owns one route for
// one load until it is saved to the logistics backend; every mutation goes
// through the session lock.
package editor

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"shipnorth/internal/backend"
	"shipnorth/internal/events"
	"shipnorth/internal/geo"
	"shipnorth/internal/model"
	"shipnorth/internal/store"
	"shipnorth/internal/tracking"
)

// Backend is the subset of the logistics API a session drives.
type Backend interface {
	GenerateRoute(ctx context.Context, req backend.GenerateRequest) (backend.GeneratedRoute, error)
	ActivateRoute(ctx context.Context, routeID string) error
	BulkAssignPackages(ctx context.Context, loadID string, packageIDs []string) error
	UnassignPackage(ctx context.Context, packageID string) error
	ListUnassignedPackages(ctx context.Context) ([]model.Package, error)
	LoadLocation(ctx context.Context, loadID string) (model.Location, error)
}

const (
	Up   = "up"
	Down = "down"
)

type Session struct {
	id      string
	loadID  string
	backend Backend
	broker  events.Broker
	store   store.Store
	tracker *tracking.Tracker
	now     func() time.Time

	mu        sync.Mutex
	route     model.RouteData
	options   model.OptimizeOptions
	selection []string
	closed    bool

	optGen    uint64
	optCancel context.CancelFunc

	// Events queued under mu are published after it is released, in order.
	outMu  sync.Mutex
	outbox []events.Event
	pubMu  sync.Mutex
}

func newSession(id string, route model.RouteData, deps deps) *Session {
	s := &Session{
		id:        id,
		loadID:    route.LoadID,
		backend:   deps.backend,
		broker:    deps.broker,
		store:     deps.store,
		now:       deps.now,
		route:     route,
		options:   deps.options,
		selection: []string{},
	}
	if s.route.Stops == nil {
		s.route.Stops = []model.RouteStop{}
	}
	s.tracker = tracking.NewTracker(route.LoadID, deps.backend, deps.cache, s.publishFix)
	return s
}

func (s *Session) ID() string { return s.id }

// LoadID never changes over the life of a session.
func (s *Session) LoadID() string { return s.loadID }

// Route returns a copy of the current route.
func (s *Session) Route() model.RouteData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route.Clone()
}

func (s *Session) View() model.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() model.SessionView {
	return model.SessionView{
		SessionID: s.id,
		Route:     s.route.Clone(),
		Stats:     statsOf(s.route),
		Options:   s.options,
		Selection: append([]string{}, s.selection...),
		Tracking:  s.tracker.Running(),
	}
}

func (s *Session) Stats() model.RouteStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return statsOf(s.route)
}

func statsOf(r model.RouteData) model.RouteStats {
	st := model.RouteStats{
		Stops:             len(r.Stops),
		TotalDistance:     r.TotalDistance,
		EstimatedDuration: r.EstimatedDuration,
		OptimizationScore: r.OptimizationScore,
	}
	for _, stop := range r.Stops {
		st.Packages += len(stop.Packages)
		if stop.Status == model.StopCompleted {
			st.CompletedStops++
		}
	}
	return st
}

// Estimates returns straight-line leg estimates between adjacent stops.
func (s *Session) Estimates() []model.LegEstimate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return geo.Legs(s.route.Stops)
}

// MoveStop swaps the stop at index with its neighbor. Up moves toward index 0.
// A move past either end is a no-op and reports false.
func (s *Session) MoveStop(index int, direction string) (bool, error) {
	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return false, ErrSessionClosed
	}
	n := len(s.route.Stops)
	if index < 0 || index >= n {
		return false, fmt.Errorf("%w: %d of %d", ErrStopIndex, index, n)
	}
	var j int
	switch direction {
	case Up:
		j = index - 1
	case Down:
		j = index + 1
	default:
		return false, ErrInvalidDirection
	}
	if j < 0 || j >= n {
		return false, nil
	}
	s.route.Stops[index], s.route.Stops[j] = s.route.Stops[j], s.route.Stops[index]
	s.changedLocked()
	return true, nil
}

// AddStop appends a pending stop with a fresh id.
func (s *Session) AddStop(in model.StopInput) (model.RouteStop, error) {
	stop := model.RouteStop{
		ID:               uuid.NewString(),
		Address:          strings.TrimSpace(in.Address),
		City:             in.City,
		Province:         in.Province,
		Packages:         in.Packages,
		EstimatedArrival: in.EstimatedArrival,
		Status:           model.StopPending,
		Coordinates:      in.Coordinates,
		Notes:            in.Notes,
	}
	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return model.RouteStop{}, ErrSessionClosed
	}
	pkgs, err := s.checkStopLocked(stop, "")
	if err != nil {
		return model.RouteStop{}, err
	}
	stop.Packages = pkgs
	s.route.Stops = append(s.route.Stops, stop)
	s.changedLocked()
	return stop.Clone(), nil
}

// UpdateStop applies the non-nil fields of patch to the stop.
func (s *Session) UpdateStop(stopID string, p model.StopPatch) (model.RouteStop, error) {
	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return model.RouteStop{}, ErrSessionClosed
	}
	i := s.indexLocked(stopID)
	if i < 0 {
		return model.RouteStop{}, fmt.Errorf("%w: %s", ErrStopNotFound, stopID)
	}
	stop := s.route.Stops[i].Clone()
	if p.Address != nil {
		stop.Address = strings.TrimSpace(*p.Address)
	}
	if p.City != nil {
		stop.City = *p.City
	}
	if p.Province != nil {
		stop.Province = *p.Province
	}
	if p.Packages != nil {
		stop.Packages = *p.Packages
	}
	if p.EstimatedArrival != nil {
		t := *p.EstimatedArrival
		stop.EstimatedArrival = &t
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return model.RouteStop{}, fmt.Errorf("%w: %q", ErrInvalidStatus, *p.Status)
		}
		stop.Status = *p.Status
	}
	if p.Coordinates != nil {
		c := *p.Coordinates
		stop.Coordinates = &c
	}
	if p.Notes != nil {
		stop.Notes = *p.Notes
	}
	pkgs, err := s.checkStopLocked(stop, stopID)
	if err != nil {
		return model.RouteStop{}, err
	}
	stop.Packages = pkgs
	s.route.Stops[i] = stop
	s.changedLocked()
	return stop.Clone(), nil
}

// RemoveStop drops the stop from the route. Its packages stay assigned to the
// load on the backend.
func (s *Session) RemoveStop(stopID string) error {
	s.mu.Lock()
	defer s.unlock()
	if s.closed {
		return ErrSessionClosed
	}
	i := s.indexLocked(stopID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrStopNotFound, stopID)
	}
	s.route.Stops = append(s.route.Stops[:i], s.route.Stops[i+1:]...)
	s.changedLocked()
	return nil
}

// SetOptions replaces the flags sent with the next optimize call.
func (s *Session) SetOptions(o model.OptimizeOptions) error {
	if o.MaxDrivingHours <= 0 || o.MaxDrivingHours > 24 {
		return fmt.Errorf("%w: maxDrivingHours must be in (0,24]", ErrInvalidOptions)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.options = o
	return nil
}

func (s *Session) Options() model.OptimizeOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// checkStopLocked validates stop against the route, ignoring the stop with
// id skip, and returns its normalized package list.
func (s *Session) checkStopLocked(stop model.RouteStop, skip string) ([]string, error) {
	if stop.Address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidStop)
	}
	if c := stop.Coordinates; c != nil && (c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180) {
		return nil, fmt.Errorf("%w: coordinates out of range", ErrInvalidStop)
	}
	onRoute := map[string]bool{}
	for _, other := range s.route.Stops {
		if other.ID == skip {
			continue
		}
		for _, p := range other.Packages {
			onRoute[p] = true
		}
	}
	out := make([]string, 0, len(stop.Packages))
	seen := map[string]bool{}
	for _, p := range stop.Packages {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("%w: empty package id", ErrInvalidStop)
		}
		if seen[p] || onRoute[p] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePackage, p)
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

func (s *Session) indexLocked(stopID string) int {
	for i, st := range s.route.Stops {
		if st.ID == stopID {
			return i
		}
	}
	return -1
}

// changedLocked stamps lastModified, refreshes derived totals and announces
// the new route.
func (s *Session) changedLocked() {
	s.route.LastModified = s.now().UTC()
	if legs := geo.Legs(s.route.Stops); len(legs) > 0 {
		s.route.TotalDistance, s.route.EstimatedDuration = geo.Totals(legs)
	}
	s.routeEventLocked(events.RouteUpdated)
}

// routeEventLocked queues a route snapshot event. It goes out on unlock.
func (s *Session) routeEventLocked(typ string) {
	s.enqueue(events.New(typ, map[string]any{
		"route": s.route.Clone(),
		"stats": statsOf(s.route),
	}))
}

func (s *Session) enqueue(evt events.Event) {
	s.outMu.Lock()
	s.outbox = append(s.outbox, evt)
	s.outMu.Unlock()
}

// unlock releases mu and then publishes what was queued while it was held.
func (s *Session) unlock() {
	s.mu.Unlock()
	s.flush()
}

// flush drains the outbox. pubMu keeps publish order equal to queue order
// without holding mu across a broker round trip.
func (s *Session) flush() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	for {
		s.outMu.Lock()
		batch := s.outbox
		s.outbox = nil
		s.outMu.Unlock()
		if len(batch) == 0 {
			return
		}
		if s.broker == nil {
			continue
		}
		for _, evt := range batch {
			s.broker.Publish(s.id, evt)
		}
	}
}

func (s *Session) publish(evt events.Event) {
	s.enqueue(evt)
	s.flush()
}

func (s *Session) publishFix(loc model.Location) {
	s.publish(events.New(events.TrackingFix, map[string]any{"location": loc}))
}

// StartTracking starts or restarts GPS polling for the session's load. mu is
// held across the start so a concurrent Close either sees the live task and
// stops it or wins and the start is refused.
func (s *Session) StartTracking(interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.tracker.Start(interval)
}

func (s *Session) StopTracking() {
	if !s.tracker.Running() {
		return
	}
	s.tracker.Stop()
	s.publish(events.New(events.TrackingStopped, map[string]any{"loadId": s.loadID}))
}

func (s *Session) Tracking() bool { return s.tracker.Running() }

// TrackingInterval is the live polling interval, or 0 when not tracking.
func (s *Session) TrackingInterval() time.Duration { return s.tracker.Interval() }

// LatestLocation returns the last GPS fix seen for the load.
func (s *Session) LatestLocation() (model.Location, bool) { return s.tracker.Latest() }

// Close cancels in-flight work, stops tracking and stores the draft. Further
// mutations fail with ErrSessionClosed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.optCancel != nil {
		s.optCancel()
		s.optCancel = nil
	}
	s.optGen++
	draft := s.route.Clone()
	s.mu.Unlock()

	s.tracker.Stop()
	var err error
	if s.store != nil && draft.LoadID != "" {
		if err = s.store.SaveDraft(ctx, draft); err != nil {
			err = fmt.Errorf("store draft for load %s: %w", draft.LoadID, err)
		}
	}
	s.publish(events.New(events.SessionClosed, map[string]any{"loadId": draft.LoadID}))
	log.Printf("[SESSION] closed id=%s load=%s", s.id, draft.LoadID)
	return err
}
