package editor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipnorth/internal/backend"
	"shipnorth/internal/events"
	"shipnorth/internal/model"
	"shipnorth/internal/store"
)

type fakeBackend struct {
	mu          sync.Mutex
	generate    func(ctx context.Context, n int, req backend.GenerateRequest) (backend.GeneratedRoute, error)
	generated   []backend.GenerateRequest
	assignErr   error
	unassignErr error
	assigned    [][]string
	unassigned  []string
	activated   []string
	packages    []model.Package
}

// echo returns the request's stops back as the optimized route.
func echo(ctx context.Context, n int, req backend.GenerateRequest) (backend.GeneratedRoute, error) {
	gr := backend.GeneratedRoute{TotalDistance: 100, EstimatedDuration: 75, OptimizationScore: 0.9}
	if req.Save {
		gr.RouteID = "rt_1"
	}
	for _, st := range req.Stops {
		gr.Stops = append(gr.Stops, model.RouteStop{Address: st.Address, City: st.City, Packages: st.Packages, Status: model.StopPending, Coordinates: st.Coordinates})
	}
	return gr, nil
}

func (f *fakeBackend) GenerateRoute(ctx context.Context, req backend.GenerateRequest) (backend.GeneratedRoute, error) {
	f.mu.Lock()
	f.generated = append(f.generated, req)
	n := len(f.generated)
	gen := f.generate
	f.mu.Unlock()
	if gen == nil {
		gen = echo
	}
	return gen(ctx, n, req)
}

func (f *fakeBackend) ActivateRoute(ctx context.Context, routeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = append(f.activated, routeID)
	return nil
}

func (f *fakeBackend) BulkAssignPackages(ctx context.Context, loadID string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignErr != nil {
		return f.assignErr
	}
	f.assigned = append(f.assigned, ids)
	return nil
}

func (f *fakeBackend) UnassignPackage(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unassignErr != nil {
		return f.unassignErr
	}
	f.unassigned = append(f.unassigned, id)
	return nil
}

func (f *fakeBackend) ListUnassignedPackages(ctx context.Context) ([]model.Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Package{}, f.packages...), nil
}

func (f *fakeBackend) LoadLocation(ctx context.Context, loadID string) (model.Location, error) {
	return model.Location{LoadID: loadID, Lat: 45.42, Lng: -75.70, RecordedAt: time.Now()}, nil
}

func (f *fakeBackend) generateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.generated)
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	backend *fakeBackend
	store   *store.Memory
	broker  *events.MemoryBroker
	clock   *clock
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: &fakeBackend{},
		store:   store.NewMemory(),
		broker:  events.NewMemoryBroker(),
		clock:   &clock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.manager = NewManager(Config{Backend: f.backend, Store: f.store, Broker: f.broker, Now: f.clock.Now})
	t.Cleanup(func() { _ = f.manager.Shutdown(context.Background()) })
	return f
}

func (f *fixture) session(t *testing.T, stops ...model.StopInput) *Session {
	t.Helper()
	s, created, err := f.manager.Open(context.Background(), "load_1")
	require.NoError(t, err)
	require.True(t, created)
	for _, in := range stops {
		_, err := s.AddStop(in)
		require.NoError(t, err)
	}
	return s
}

var (
	toronto  = model.StopInput{Address: "100 Queen St W", City: "Toronto", Packages: []string{"p1"}, Coordinates: &model.GeoPoint{Lat: 43.65, Lng: -79.38}}
	ottawa   = model.StopInput{Address: "111 Wellington St", City: "Ottawa", Packages: []string{"p2", "p3"}, Coordinates: &model.GeoPoint{Lat: 45.42, Lng: -75.70}}
	kingston = model.StopInput{Address: "216 Ontario St", City: "Kingston", Packages: []string{"p4"}}
)

func addresses(r model.RouteData) []string {
	out := make([]string, len(r.Stops))
	for i, s := range r.Stops {
		out[i] = s.Address
	}
	return out
}

func TestMoveStopUpThenDownRestoresOrder(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto, kingston, ottawa)
	orig := addresses(s.Route())

	for i := 1; i < len(orig); i++ {
		changed, err := s.MoveStop(i, Up)
		require.NoError(t, err)
		require.True(t, changed)
		changed, err = s.MoveStop(i-1, Down)
		require.NoError(t, err)
		require.True(t, changed)
		assert.Equal(t, orig, addresses(s.Route()), "index %d", i)
	}
	for i := 0; i < len(orig)-1; i++ {
		_, _ = s.MoveStop(i, Down)
		_, _ = s.MoveStop(i+1, Up)
		assert.Equal(t, orig, addresses(s.Route()), "index %d", i)
	}
}

func TestMoveStopBoundaryIsNoop(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto, kingston)
	before := s.Route()
	f.clock.Advance(time.Minute)

	changed, err := s.MoveStop(0, Up)
	require.NoError(t, err)
	assert.False(t, changed)
	changed, err = s.MoveStop(1, Down)
	require.NoError(t, err)
	assert.False(t, changed)

	after := s.Route()
	assert.Equal(t, addresses(before), addresses(after))
	assert.Equal(t, before.LastModified, after.LastModified)

	changed, err = s.MoveStop(0, Down)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, f.clock.Now(), s.Route().LastModified)
}

func TestMoveStopRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto)
	_, err := s.MoveStop(3, Up)
	assert.ErrorIs(t, err, ErrStopIndex)
	_, err = s.MoveStop(-1, Down)
	assert.ErrorIs(t, err, ErrStopIndex)
	_, err = s.MoveStop(0, "sideways")
	assert.ErrorIs(t, err, ErrInvalidDirection)
}

func TestDerivedTotalsFromLegs(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto, ottawa)
	st := s.Stats()
	assert.InDelta(t, 352, st.TotalDistance, 1.5)
	assert.InDelta(t, 264, st.EstimatedDuration, 1.5)
	assert.Equal(t, 2, st.Stops)
	assert.Equal(t, 3, st.Packages)

	legs := s.Estimates()
	require.Len(t, legs, 1)
	route := s.Route()
	assert.Equal(t, route.Stops[0].ID, legs[0].FromStopID)
	assert.Equal(t, route.Stops[1].ID, legs[0].ToStopID)
}

func TestTotalsKeptWhenNoLegEstimable(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, kingston)
	_, err := s.Optimize(context.Background())
	require.NoError(t, err)
	require.Equal(t, 100.0, s.Stats().TotalDistance)

	_, err = s.AddStop(model.StopInput{Address: "1 Main St", Packages: []string{"p9"}})
	require.NoError(t, err)
	assert.Equal(t, 100.0, s.Stats().TotalDistance)
}

func TestAddStopRejectsDuplicatePackage(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto)
	_, err := s.AddStop(model.StopInput{Address: "2 Bay St", Packages: []string{"p1"}})
	assert.ErrorIs(t, err, ErrDuplicatePackage)
	_, err = s.AddStop(model.StopInput{Address: "2 Bay St", Packages: []string{"p7", "p7"}})
	assert.ErrorIs(t, err, ErrDuplicatePackage)
	_, err = s.AddStop(model.StopInput{Address: "  "})
	assert.ErrorIs(t, err, ErrInvalidStop)
	assert.Len(t, s.Route().Stops, 1)
}

func TestUpdateStop(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto, ottawa)
	r := s.Route()

	done := model.StopCompleted
	notes := "leave at dock"
	st, err := s.UpdateStop(r.Stops[0].ID, model.StopPatch{Status: &done, Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, model.StopCompleted, st.Status)
	assert.Equal(t, 1, s.Stats().CompletedStops)

	bad := model.StopStatus("lost")
	_, err = s.UpdateStop(r.Stops[0].ID, model.StopPatch{Status: &bad})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	steal := []string{"p2"}
	_, err = s.UpdateStop(r.Stops[0].ID, model.StopPatch{Packages: &steal})
	assert.ErrorIs(t, err, ErrDuplicatePackage)

	own := []string{"p3", "p2"}
	st, err = s.UpdateStop(r.Stops[1].ID, model.StopPatch{Packages: &own})
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2"}, st.Packages)

	_, err = s.UpdateStop("missing", model.StopPatch{Notes: &notes})
	assert.ErrorIs(t, err, ErrStopNotFound)

	require.NoError(t, s.RemoveStop(r.Stops[0].ID))
	assert.ErrorIs(t, s.RemoveStop(r.Stops[0].ID), ErrStopNotFound)
	assert.Len(t, s.Route().Stops, 1)
}

func TestRemovePackageDropsEmptyStop(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto, ottawa)

	require.NoError(t, s.RemovePackage(context.Background(), "p1"))
	r := s.Route()
	require.Len(t, r.Stops, 1)
	assert.Equal(t, "111 Wellington St", r.Stops[0].Address)
	assert.Equal(t, []string{"p1"}, f.backend.unassigned)
	assert.Equal(t, 1, f.backend.generateCalls(), "re-optimized with stops remaining")

	require.NoError(t, s.RemovePackage(context.Background(), "p2"))
	require.Len(t, s.Route().Stops, 1)
	assert.Equal(t, []string{"p3"}, s.Route().Stops[0].Packages)

	require.NoError(t, s.RemovePackage(context.Background(), "p3"))
	assert.Empty(t, s.Route().Stops)
	assert.Equal(t, 2, f.backend.generateCalls(), "no optimize once the route is empty")
}

func TestRemovePackageBackendFailureLeavesRoute(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto, ottawa)
	before := s.Route()
	boom := errors.New("backend down")
	f.backend.unassignErr = boom

	err := s.RemovePackage(context.Background(), "p1")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, before, s.Route())
	assert.Zero(t, f.backend.generateCalls())

	err = s.RemovePackage(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrPackageNotOnRoute)
}

func TestAssignPackagesUsesSelection(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto)
	f.backend.packages = []model.Package{{ID: "p1"}, {ID: "p5"}, {ID: "p6"}}

	avail, err := s.AvailablePackages(context.Background())
	require.NoError(t, err)
	require.Len(t, avail, 2, "p1 is already on the route")

	_, err = s.SetSelection([]string{"p5", "p6", "p5"})
	require.NoError(t, err)
	require.NoError(t, s.Select("p8"))
	require.NoError(t, s.Deselect("p8"))
	assert.ErrorIs(t, s.Select(" "), ErrInvalidStop)
	assert.Equal(t, []string{"p5", "p6"}, s.Selection())

	require.NoError(t, s.AssignPackages(context.Background(), nil))
	assert.Equal(t, [][]string{{"p5", "p6"}}, f.backend.assigned)
	assert.Empty(t, s.Selection())
	assert.Equal(t, 1, f.backend.generateCalls())

	assert.ErrorIs(t, s.AssignPackages(context.Background(), nil), ErrNoPackages)
	assert.ErrorIs(t, s.AssignPackages(context.Background(), []string{"p1"}), ErrDuplicatePackage)
}

func TestAssignPackagesBackendFailureKeepsSelection(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	boom := errors.New("bulk assign refused")
	f.backend.assignErr = boom
	_, err := s.SetSelection([]string{"p5"})
	require.NoError(t, err)

	err = s.AssignPackages(context.Background(), nil)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"p5"}, s.Selection())
	assert.Zero(t, f.backend.generateCalls())
}

func TestOptimizeReplacesStops(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto, kingston, ottawa)
	require.NoError(t, s.SetOptions(model.OptimizeOptions{MaxDrivingHours: 8, PreserveOrder: true}))
	before := s.Route()

	r, err := s.Optimize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, r.TotalDistance)
	assert.Equal(t, 75.0, r.EstimatedDuration)
	assert.Equal(t, 0.9, r.OptimizationScore)
	require.Len(t, r.Stops, 3)
	// the generator echoed no ids, so every stop gets a fresh one
	for i, st := range r.Stops {
		assert.NotEmpty(t, st.ID)
		assert.NotEqual(t, before.Stops[i].ID, st.ID)
	}

	req := f.backend.generated[0]
	assert.Equal(t, "load_1", req.LoadID)
	assert.False(t, req.Save)
	assert.Equal(t, 8.0, req.Options.MaxDrivingHours)
	assert.Equal(t, []string{"Toronto", "Kingston", "Ottawa"}, req.CustomOrder)

	assert.ErrorIs(t, s.SetOptions(model.OptimizeOptions{}), ErrInvalidOptions)
}

func TestOptimizeFailureLeavesRoute(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto)
	before := s.Route()
	f.backend.generate = func(ctx context.Context, n int, req backend.GenerateRequest) (backend.GeneratedRoute, error) {
		return backend.GeneratedRoute{}, backend.ErrMalformedResponse
	}
	_, err := s.Optimize(context.Background())
	require.ErrorIs(t, err, backend.ErrMalformedResponse)
	assert.Equal(t, before, s.Route())
}

func TestOptimizeLatestRequestWins(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto)
	started := make(chan struct{})
	f.backend.generate = func(ctx context.Context, n int, req backend.GenerateRequest) (backend.GeneratedRoute, error) {
		if n == 1 {
			close(started)
			<-ctx.Done()
			return backend.GeneratedRoute{TotalDistance: 1, Stops: []model.RouteStop{{Address: "stale"}}}, nil
		}
		return backend.GeneratedRoute{TotalDistance: 2, Stops: []model.RouteStop{{Address: "fresh", Packages: []string{"p1"}}}}, nil
	}

	firstErr := make(chan error, 1)
	go func() {
		_, err := s.Optimize(context.Background())
		firstErr <- err
	}()
	<-started

	r, err := s.Optimize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2.0, r.TotalDistance)

	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, ErrSuperseded)
	case <-time.After(2 * time.Second):
		t.Fatal("first optimize did not return")
	}
	assert.Equal(t, []string{"fresh"}, addresses(s.Route()))
}

func TestSaveGeneratesThenActivates(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto)

	r, err := s.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rt_1", r.ID)
	assert.Equal(t, model.RouteDraft, r.Status)
	require.Len(t, f.backend.generated, 1)
	assert.True(t, f.backend.generated[0].Save)

	draft, err := f.store.GetDraft(context.Background(), "load_1")
	require.NoError(t, err)
	assert.Equal(t, "rt_1", draft.ID)

	r, err = s.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.RouteActive, r.Status)
	assert.Equal(t, []string{"rt_1"}, f.backend.activated)
	assert.Len(t, f.backend.generated, 1)
}

func TestSaveRequiresRouteID(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto)
	f.backend.generate = func(ctx context.Context, n int, req backend.GenerateRequest) (backend.GeneratedRoute, error) {
		return backend.GeneratedRoute{}, nil
	}
	_, err := s.Save(context.Background())
	assert.ErrorIs(t, err, backend.ErrMalformedResponse)
	assert.Empty(t, s.Route().ID)
}

func TestManagerLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	s := f.session(t, toronto)

	again, created, err := f.manager.Open(ctx, "load_1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, s, again)
	assert.Len(t, f.manager.List(), 1)

	ch := f.broker.Subscribe(s.ID())
	defer f.broker.Unsubscribe(s.ID(), ch)
	require.NoError(t, f.manager.Close(ctx, s.ID()))
	evt := <-ch
	assert.Equal(t, events.SessionClosed, evt.Type)

	_, err = f.manager.Get(s.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.manager.Close(ctx, s.ID()), ErrSessionNotFound)
	_, err = s.AddStop(ottawa)
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Select("p9"), ErrSessionClosed)
	assert.ErrorIs(t, s.Deselect("p9"), ErrSessionClosed)
	assert.ErrorIs(t, s.StartTracking(time.Millisecond), ErrSessionClosed)

	restored, created, err := f.manager.Open(ctx, "load_1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, s.ID(), restored.ID())
	assert.Equal(t, []string{"100 Queen St W"}, addresses(restored.Route()))

	_, _, err = f.manager.Open(ctx, " ")
	assert.Error(t, err)
}

func TestTrackingPublishesFixes(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	ch := f.broker.Subscribe(s.ID())
	defer f.broker.Unsubscribe(s.ID(), ch)

	require.NoError(t, s.StartTracking(10*time.Millisecond))
	assert.True(t, s.Tracking())
	select {
	case evt := <-ch:
		assert.Equal(t, events.TrackingFix, evt.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no tracking event")
	}
	loc, ok := s.LatestLocation()
	require.True(t, ok)
	assert.Equal(t, "load_1", loc.LoadID)

	s.StopTracking()
	assert.False(t, s.Tracking())
}

func TestOptimizeKeepsStopIdentity(t *testing.T) {
	f := newFixture(t)
	s := f.session(t, toronto, ottawa)
	before := s.Route()
	done := model.StopCompleted
	notes := "leave at dock 3"
	_, err := s.UpdateStop(before.Stops[0].ID, model.StopPatch{Status: &done, Notes: &notes})
	require.NoError(t, err)

	// reverse the order, echo ids and status, and repeat one id
	f.backend.generate = func(ctx context.Context, n int, req backend.GenerateRequest) (backend.GeneratedRoute, error) {
		gr := backend.GeneratedRoute{TotalDistance: 10, EstimatedDuration: 8, OptimizationScore: 0.5}
		for i := len(req.Stops) - 1; i >= 0; i-- {
			st := req.Stops[i]
			gr.Stops = append(gr.Stops, model.RouteStop{ID: st.ID, Address: st.Address, Packages: st.Packages, Status: st.Status, Notes: st.Notes})
		}
		gr.Stops = append(gr.Stops, model.RouteStop{ID: req.Stops[0].ID, Address: "copy", Status: model.StopPending})
		return gr, nil
	}

	r, err := s.Optimize(context.Background())
	require.NoError(t, err)
	req := f.backend.generated[0]
	assert.Equal(t, model.StopCompleted, req.Stops[0].Status)
	assert.Equal(t, notes, req.Stops[0].Notes)

	require.Len(t, r.Stops, 3)
	assert.Equal(t, before.Stops[1].ID, r.Stops[0].ID)
	assert.Equal(t, before.Stops[0].ID, r.Stops[1].ID)
	assert.Equal(t, model.StopCompleted, r.Stops[1].Status)
	assert.Equal(t, notes, r.Stops[1].Notes)
	assert.NotEqual(t, before.Stops[0].ID, r.Stops[2].ID, "repeated id is replaced")

	// ids stay valid for edits after the optimize
	_, err = s.UpdateStop(before.Stops[0].ID, model.StopPatch{Notes: &notes})
	assert.NoError(t, err)
}

// gatedBroker blocks Publish until release is closed.
type gatedBroker struct {
	*events.MemoryBroker
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *gatedBroker) Publish(topic string, evt events.Event) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	b.MemoryBroker.Publish(topic, evt)
}

func TestSlowBrokerDoesNotBlockReaders(t *testing.T) {
	b := &gatedBroker{MemoryBroker: events.NewMemoryBroker(), entered: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(Config{Backend: &fakeBackend{}, Store: store.NewMemory(), Broker: b})
	s, _, err := m.Open(context.Background(), "load_slow")
	require.NoError(t, err)
	ch := b.Subscribe(s.ID())
	defer b.Unsubscribe(s.ID(), ch)

	added := make(chan error, 1)
	go func() {
		_, err := s.AddStop(toronto)
		added <- err
	}()
	<-b.entered

	read := make(chan model.SessionView, 1)
	go func() {
		_, _ = m.Get(s.ID())
		read <- s.View()
	}()
	select {
	case v := <-read:
		assert.Len(t, v.Route.Stops, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("View blocked behind Publish")
	}

	close(b.release)
	require.NoError(t, <-added)
	evt := <-ch
	assert.Equal(t, events.RouteUpdated, evt.Type)
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestEventsKeepMutationOrder(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)
	ch := f.broker.Subscribe(s.ID())
	defer f.broker.Unsubscribe(s.ID(), ch)

	_, err := s.AddStop(toronto)
	require.NoError(t, err)
	_, err = s.AddStop(ottawa)
	require.NoError(t, err)
	for _, want := range []int{1, 2} {
		evt := <-ch
		r, ok := evt.Data["route"].(model.RouteData)
		require.True(t, ok)
		assert.Len(t, r.Stops, want)
	}
}

func TestStartTrackingRacingCloseLeavesNothingRunning(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t)
		s := f.session(t)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			err := s.StartTracking(time.Millisecond)
			if err != nil {
				assert.ErrorIs(t, err, ErrSessionClosed)
			}
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, f.manager.Close(context.Background(), s.ID()))
		}()
		wg.Wait()
		assert.False(t, s.Tracking(), "tracker survived close")
		assert.Zero(t, s.TrackingInterval())
	}
}
