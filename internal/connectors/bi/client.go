// Package bi is the BI-server connector: a rate-limited REST client that
// pulls sites, projects, workbooks, users, groups, and permission rules,
// resolves the platform's effective permissions (explicit rules, implicit
// ownership, site-role blankets), and converges the server through its
// REST API.
package bi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/jettylabs/jetty/internal/errors"
)

// Client wraps the BI server's REST API with rate limiting.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
}

// NewClient builds a client. requestsPerSecond throttles all calls; the
// server suspends credentials that hammer it.
func NewClient(baseURL, token string, requestsPerSecond int) *Client {
	if requestsPerSecond < 1 {
		requestsPerSecond = 5
	}
	return &Client{
		baseURL:     baseURL,
		token:       token,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.TransportErrorf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.TransportErrorf(
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(payload)),
			"%s %s", method, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) put(ctx context.Context, path string, body any) error {
	return c.do(ctx, http.MethodPut, path, body, nil)
}

func (c *Client) delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Wire types for the server's REST payloads.

type apiUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	SiteRole string `json:"siteRole"`
}

type apiGroup struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	UserIDs []string `json:"userIds"`
}

type apiProject struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
	OwnerID  string `json:"ownerId"`
	// LeaderIDs are the users with the project-leader capability.
	LeaderIDs []string `json:"leaderIds"`
}

type apiWorkbook struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId"`
	OwnerID   string `json:"ownerId"`
	// UpstreamTables are warehouse CUALs the workbook reads from.
	UpstreamTables []string `json:"upstreamTables"`
}

type apiCapability struct {
	Name string `json:"name"`
	Mode string `json:"mode"` // "Allow" or "Deny"
}

type apiPermissionRule struct {
	GranteeType  string          `json:"granteeType"` // "user" or "group"
	GranteeID    string          `json:"granteeId"`
	Capabilities []apiCapability `json:"capabilities"`
}

type apiPermissions struct {
	AssetID string              `json:"assetId"`
	Rules   []apiPermissionRule `json:"rules"`
}

func (c *Client) listUsers(ctx context.Context) ([]apiUser, error) {
	var out struct {
		Users []apiUser `json:"users"`
	}
	if err := c.get(ctx, "/api/users", &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

func (c *Client) listGroups(ctx context.Context) ([]apiGroup, error) {
	var out struct {
		Groups []apiGroup `json:"groups"`
	}
	if err := c.get(ctx, "/api/groups", &out); err != nil {
		return nil, err
	}
	return out.Groups, nil
}

func (c *Client) listProjects(ctx context.Context) ([]apiProject, error) {
	var out struct {
		Projects []apiProject `json:"projects"`
	}
	if err := c.get(ctx, "/api/projects", &out); err != nil {
		return nil, err
	}
	return out.Projects, nil
}

func (c *Client) listWorkbooks(ctx context.Context) ([]apiWorkbook, error) {
	var out struct {
		Workbooks []apiWorkbook `json:"workbooks"`
	}
	if err := c.get(ctx, "/api/workbooks", &out); err != nil {
		return nil, err
	}
	return out.Workbooks, nil
}

func (c *Client) workbookPermissions(ctx context.Context, workbookID string) (apiPermissions, error) {
	var out apiPermissions
	err := c.get(ctx, "/api/workbooks/"+workbookID+"/permissions", &out)
	return out, err
}

func (c *Client) createGroup(ctx context.Context, name string) (string, error) {
	var out apiGroup
	if err := c.post(ctx, "/api/groups", map[string]string{"name": name}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) deleteGroup(ctx context.Context, groupID string) error {
	return c.delete(ctx, "/api/groups/"+groupID)
}

func (c *Client) addGroupMember(ctx context.Context, groupID, userID string) error {
	return c.put(ctx, "/api/groups/"+groupID+"/users/"+userID, nil)
}

func (c *Client) removeGroupMember(ctx context.Context, groupID, userID string) error {
	return c.delete(ctx, "/api/groups/"+groupID+"/users/"+userID)
}

func (c *Client) putPermissionRule(ctx context.Context, assetID string, rule apiPermissionRule) error {
	return c.put(ctx, "/api/workbooks/"+assetID+"/permissions", rule)
}

func (c *Client) deletePermissionCapability(ctx context.Context, assetID, granteeType, granteeID, capability string) error {
	return c.delete(ctx, fmt.Sprintf("/api/workbooks/%s/permissions/%s/%s/%s", assetID, granteeType, granteeID, capability))
}
