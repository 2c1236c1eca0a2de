package api

import (
    "net/http"
    "sort"
    "strconv"

    "github.com/gorilla/mux"

    "shipnorth/internal/model"
)

// CreateSessionHandler handles POST /v1/sessions. An open session for the
// same load is returned with 200, a new one with 201.
func (s *Server) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    var req model.CreateSessionRequest
    if !decodeJSON(w, r, &req, false) { return }
    if err := validateCreateSession(req); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid session request", err.Error(), r.URL.Path)
        return
    }
    sess, created, err := s.Sessions.Open(r.Context(), req.LoadID)
    if err != nil { writeError(w, r, err); return }
    status := http.StatusOK
    if created {
        status = http.StatusCreated
        w.Header().Set("Location", "/v1/sessions/"+sess.ID())
    }
    writeJSON(w, status, sess.View())
}

func (s *Server) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    writeJSON(w, http.StatusOK, map[string]any{"items": s.Sessions.List()})
}

func (s *Server) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canView(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    writeJSON(w, http.StatusOK, sess.View())
}

// CloseSessionHandler handles DELETE /v1/sessions/{id}
func (s *Server) CloseSessionHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    if err := s.Sessions.Close(r.Context(), mux.Vars(r)["id"]); err != nil { writeError(w, r, err); return }
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) AddStopHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    var in model.StopInput
    if !decodeJSON(w, r, &in, false) { return }
    stop, err := sess.AddStop(in)
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusCreated, map[string]any{"stop": stop, "session": sess.View()})
}

func (s *Server) UpdateStopHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    var p model.StopPatch
    if !decodeJSON(w, r, &p, false) { return }
    stop, err := sess.UpdateStop(mux.Vars(r)["stopId"], p)
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"stop": stop, "session": sess.View()})
}

func (s *Server) RemoveStopHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    if err := sess.RemoveStop(mux.Vars(r)["stopId"]); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, sess.View())
}

// MoveStopHandler handles POST /v1/sessions/{id}/stops/{index}/move
func (s *Server) MoveStopHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    index, err := strconv.Atoi(mux.Vars(r)["index"])
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid index", err.Error(), r.URL.Path); return }
    var req model.MoveRequest
    if !decodeJSON(w, r, &req, false) { return }
    changed, err := sess.MoveStop(index, req.Direction)
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"changed": changed, "session": sess.View()})
}

func (s *Server) EstimatesHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canView(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    legs := sess.Estimates()
    var km, mins float64
    for _, l := range legs {
        km += l.DistanceKm
        mins += l.DurationMinutes
    }
    writeJSON(w, http.StatusOK, map[string]any{"legs": legs, "totalDistanceKm": km, "totalDurationMinutes": mins})
}

func (s *Server) AvailablePackagesHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    pkgs, err := sess.AvailablePackages(r.Context())
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": pkgs, "selection": sess.Selection()})
}

// SelectionHandler handles PUT /v1/sessions/{id}/selection
func (s *Server) SelectionHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    var req model.PackageIDsRequest
    if !decodeJSON(w, r, &req, false) { return }
    sel, err := sess.SetSelection(req.PackageIDs)
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"selection": sel})
}

// SelectPackageHandler handles PUT and DELETE /v1/sessions/{id}/selection/{packageId}
func (s *Server) SelectPackageHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    id := mux.Vars(r)["packageId"]
    var err error
    if r.Method == http.MethodDelete {
        err = sess.Deselect(id)
    } else {
        err = sess.Select(id)
    }
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"selection": sess.Selection()})
}

// AssignPackagesHandler handles POST /v1/sessions/{id}/packages. Without a
// body the current selection is assigned.
func (s *Server) AssignPackagesHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    var req model.PackageIDsRequest
    if !decodeJSON(w, r, &req, true) { return }
    if err := sess.AssignPackages(r.Context(), req.PackageIDs); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) RemovePackageHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    if err := sess.RemovePackage(r.Context(), mux.Vars(r)["packageId"]); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) OptionsHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    var o model.OptimizeOptions
    if !decodeJSON(w, r, &o, false) { return }
    if err := sess.SetOptions(o); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"options": sess.Options()})
}

// OptimizeHandler handles POST /v1/sessions/{id}/optimize. A request
// overtaken by a newer one answers 409.
func (s *Server) OptimizeHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    if _, err := sess.Optimize(r.Context()); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) SaveHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    if _, err := sess.Save(r.Context()); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, sess.View())
}

// StartTrackingHandler handles POST /v1/sessions/{id}/tracking
func (s *Server) StartTrackingHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canTrack(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    var req model.TrackingRequest
    if !decodeJSON(w, r, &req, true) { return }
    interval, err := trackingInterval(req, s.Config.TrackingInterval)
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid tracking request", err.Error(), r.URL.Path); return }
    if err := sess.StartTracking(interval); err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusAccepted, map[string]any{"tracking": true, "intervalSec": int(interval.Seconds())})
}

func (s *Server) StopTrackingHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canTrack(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    sess.StopTracking()
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) LatestLocationHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canView(w, r) { return }
    sess, ok := s.session(w, r)
    if !ok { return }
    loc, found := sess.LatestLocation()
    body := map[string]any{"tracking": sess.Tracking(), "intervalSec": int(sess.TrackingInterval().Seconds())}
    if found { body["location"] = loc }
    writeJSON(w, http.StatusOK, body)
}

// LocationsHandler handles GET /v1/locations: the latest fix of every load
// tracked since startup.
func (s *Server) LocationsHandler(w http.ResponseWriter, r *http.Request) {
    if !s.canEdit(w, r) { return }
    items := s.Sessions.Locations().List()
    sort.Slice(items, func(i, j int) bool { return items[i].LoadID < items[j].LoadID })
    writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// DraftsHandler handles GET /v1/drafts (admin)
func (s *Server) DraftsHandler(w http.ResponseWriter, r *http.Request) {
    if !s.isAdmin(w, r) { return }
    cursor := r.URL.Query().Get("cursor")
    limit, err := parseLimit(r.URL.Query().Get("limit"))
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path); return }
    items, next, err := s.Store.ListDrafts(r.Context(), cursor, limit)
    if err != nil { writeError(w, r, err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}
