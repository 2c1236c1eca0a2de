package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// GenerateRoute asks the external optimizer for a route for the load. Calls
// with Save set persist a route server-side and are never retried.
func (c *Client) GenerateRoute(ctx context.Context, req GenerateRequest) (GeneratedRoute, error) {
	if strings.TrimSpace(req.LoadID) == "" {
		return GeneratedRoute{}, errors.New("generate route: load id must not be empty")
	}
	if req.Stops == nil {
		req.Stops = []StopPayload{}
	}
	var raw generateResponse
	if err := c.call(ctx, "generateRoute", http.MethodPost, "/routes/generate", req, &raw, !req.Save); err != nil {
		return GeneratedRoute{}, err
	}
	gr, err := raw.toRoute()
	if err != nil {
		return GeneratedRoute{}, err
	}
	if req.Save && gr.RouteID == "" {
		return GeneratedRoute{}, malformed("routeId missing for saved route")
	}
	return gr, nil
}

// ActivateRoute activates a previously generated route.
func (c *Client) ActivateRoute(ctx context.Context, routeID string) error {
	if strings.TrimSpace(routeID) == "" {
		return errors.New("activate route: route id must not be empty")
	}
	return c.call(ctx, "activateRoute", http.MethodPost, "/routes/"+url.PathEscape(routeID)+"/activate", nil, nil, true)
}
