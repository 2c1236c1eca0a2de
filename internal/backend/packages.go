package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"shipnorth/internal/model"
)

// BulkAssignPackages attaches packageIDs to the load.
func (c *Client) BulkAssignPackages(ctx context.Context, loadID string, packageIDs []string) error {
	if strings.TrimSpace(loadID) == "" {
		return errors.New("bulk assign: load id must not be empty")
	}
	if len(packageIDs) == 0 {
		return errors.New("bulk assign: no package ids")
	}
	path := "/loads/" + url.PathEscape(loadID) + "/packages/bulk-assign"
	return c.call(ctx, "bulkAssignPackages", http.MethodPost, path, bulkAssignRequest{PackageIDs: packageIDs}, nil, true)
}

// UnassignPackage clears the package's load reference.
func (c *Client) UnassignPackage(ctx context.Context, packageID string) error {
	if strings.TrimSpace(packageID) == "" {
		return errors.New("unassign package: package id must not be empty")
	}
	return c.call(ctx, "updatePackage", http.MethodPatch, "/packages/"+url.PathEscape(packageID), packageUpdate{LoadID: nil}, nil, true)
}

// ListUnassignedPackages returns packages not attached to any load.
func (c *Client) ListUnassignedPackages(ctx context.Context) ([]model.Package, error) {
	var raw packageListResponse
	if err := c.call(ctx, "listPackages", http.MethodGet, "/packages?status=unassigned", nil, &raw, true); err != nil {
		return nil, err
	}
	if err := raw.validate(); err != nil {
		return nil, err
	}
	return *raw.Packages, nil
}

// LoadLocation returns the latest GPS fix for the load.
func (c *Client) LoadLocation(ctx context.Context, loadID string) (model.Location, error) {
	if strings.TrimSpace(loadID) == "" {
		return model.Location{}, errors.New("load location: load id must not be empty")
	}
	var raw locationResponse
	if err := c.call(ctx, "loadLocation", http.MethodGet, "/loads/"+url.PathEscape(loadID)+"/location", nil, &raw, true); err != nil {
		return model.Location{}, err
	}
	return raw.toLocation(loadID)
}
