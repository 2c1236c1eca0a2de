package editor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"shipnorth/internal/model"
)

// SetSelection replaces the local selection of available package ids.
func (s *Session) SetSelection(ids []string) ([]string, error) {
	clean, err := uniqueIDs(ids)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	s.selection = clean
	return append([]string{}, s.selection...), nil
}

// Select adds id to the selection. Selecting twice is harmless.
func (s *Session) Select(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: empty package id", ErrInvalidStop)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	for _, v := range s.selection {
		if v == id {
			return nil
		}
	}
	s.selection = append(s.selection, id)
	return nil
}

func (s *Session) Deselect(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.selection = without(s.selection, map[string]bool{strings.TrimSpace(id): true})
	return nil
}

func (s *Session) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.selection...)
}

// AvailablePackages lists unassigned packages that are not already on the
// route.
func (s *Session) AvailablePackages(ctx context.Context) ([]model.Package, error) {
	pkgs, err := s.backend.ListUnassignedPackages(ctx)
	if err != nil {
		return nil, fmt.Errorf("list available packages: %w", err)
	}
	s.mu.Lock()
	onRoute := s.packagesLocked()
	s.mu.Unlock()
	out := make([]model.Package, 0, len(pkgs))
	for _, p := range pkgs {
		if !onRoute[p.ID] {
			out = append(out, p)
		}
	}
	return out, nil
}

// AssignPackages attaches ids to the load on the backend and re-optimizes.
// With no ids the current selection is assigned. Nothing changes locally when
// the backend call fails.
func (s *Session) AssignPackages(ctx context.Context, ids []string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if len(ids) == 0 {
		ids = append([]string{}, s.selection...)
	}
	loadID := s.route.LoadID
	onRoute := s.packagesLocked()
	s.mu.Unlock()

	clean, err := uniqueIDs(ids)
	if err != nil {
		return err
	}
	if len(clean) == 0 {
		return ErrNoPackages
	}
	for _, id := range clean {
		if onRoute[id] {
			return fmt.Errorf("%w: %s", ErrDuplicatePackage, id)
		}
	}
	if err := s.backend.BulkAssignPackages(ctx, loadID, clean); err != nil {
		log.Printf("[SESSION] assign packages id=%s load=%s n=%d err=%v", s.id, loadID, len(clean), err)
		return fmt.Errorf("assign packages to load %s: %w", loadID, err)
	}

	assigned := map[string]bool{}
	for _, id := range clean {
		assigned[id] = true
	}
	s.mu.Lock()
	s.selection = without(s.selection, assigned)
	s.mu.Unlock()

	s.reoptimize(ctx, "assign")
	return nil
}

// RemovePackage unassigns id on the backend first, then drops it from its
// stop. A stop left without packages is removed.
func (s *Session) RemovePackage(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	onRoute := s.packagesLocked()[id]
	loadID := s.route.LoadID
	s.mu.Unlock()
	if !onRoute {
		return fmt.Errorf("%w: %s", ErrPackageNotOnRoute, id)
	}

	if err := s.backend.UnassignPackage(ctx, id); err != nil {
		log.Printf("[SESSION] unassign package id=%s load=%s package=%s err=%v", s.id, loadID, id, err)
		return fmt.Errorf("unassign package %s: %w", id, err)
	}

	s.mu.Lock()
	kept := s.route.Stops[:0]
	for _, st := range s.route.Stops {
		if st.HasPackage(id) {
			st.Packages = without(st.Packages, map[string]bool{id: true})
			if len(st.Packages) == 0 {
				continue
			}
		}
		kept = append(kept, st)
	}
	s.route.Stops = kept
	remaining := len(kept)
	s.changedLocked()
	s.unlock()

	if remaining > 0 {
		s.reoptimize(ctx, "remove")
	}
	return nil
}

// reoptimize runs Optimize after a package change. The package change has
// already been committed, so failures are only logged.
func (s *Session) reoptimize(ctx context.Context, reason string) {
	if _, err := s.Optimize(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		log.Printf("[SESSION] re-optimize after %s id=%s err=%v", reason, s.id, err)
	}
}

func (s *Session) packagesLocked() map[string]bool {
	out := map[string]bool{}
	for _, st := range s.route.Stops {
		for _, p := range st.Packages {
			out[p] = true
		}
	}
	return out
}

func uniqueIDs(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	seen := map[string]bool{}
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("%w: empty package id", ErrInvalidStop)
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func without(ids []string, drop map[string]bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !drop[id] {
			out = append(out, id)
		}
	}
	return out
}
