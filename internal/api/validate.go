package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"shipnorth/internal/model"
)

func validateCreateSession(req model.CreateSessionRequest) error {
	if strings.TrimSpace(req.LoadID) == "" {
		return fmt.Errorf("loadId is required")
	}
	if len(req.LoadID) > 128 {
		return fmt.Errorf("loadId must be at most 128 characters")
	}
	return nil
}

// trackingInterval returns the requested polling interval or def when none
// was given.
func trackingInterval(req model.TrackingRequest, def time.Duration) (time.Duration, error) {
	if req.IntervalSec == 0 {
		if def <= 0 {
			def = 10 * time.Second
		}
		return def, nil
	}
	if req.IntervalSec < 1 || req.IntervalSec > 3600 {
		return 0, fmt.Errorf("intervalSec must be in [1,3600]")
	}
	return time.Duration(req.IntervalSec) * time.Second, nil
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return 100, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > 500 {
		return 0, fmt.Errorf("limit must be in [1,500]")
	}
	return n, nil
}
