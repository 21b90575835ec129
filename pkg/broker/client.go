// Package broker is an HTTP client for the management controller's
// administration API: hosting-connection and resource-unit enumeration,
// provisioning-task control, object deletion and the configuration-logging
// (audit) subsystem.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/virtops/brokeradm/internal/models"
	srvErrors "github.com/virtops/brokeradm/pkg/errors"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithToken sets a bearer token for every request. An already expired token
// is reported as a warning up front rather than failing on first use.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
		warnIfExpired(token)
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func warnIfExpired(token string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if exp.Before(time.Now()) {
		zap.S().Named("broker_client").Warnw("bearer token is expired", "expiredAt", exp.Time)
	}
}

// About answers the controller health query.
// GET /about
func (c *Client) About(ctx context.Context) (models.ControllerInfo, error) {
	var payload struct {
		MachineName string `json:"machineName"`
		Role        string `json:"role"`
		Version     string `json:"version"`
	}
	if err := c.do(ctx, http.MethodGet, "/about", nil, "", &payload); err != nil {
		return models.ControllerInfo{}, err
	}
	return models.ControllerInfo{
		MachineName: payload.MachineName,
		Role:        payload.Role,
		Version:     payload.Version,
	}, nil
}

// ListHostingConnections enumerates the hosting connections known to the
// controller.
// GET /hosting
func (c *Client) ListHostingConnections(ctx context.Context) ([]models.HostingConnection, error) {
	var payload []struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	if err := c.do(ctx, http.MethodGet, "/hosting", nil, "", &payload); err != nil {
		return nil, err
	}
	conns := make([]models.HostingConnection, 0, len(payload))
	for _, p := range payload {
		conns = append(conns, models.HostingConnection{Name: p.Name, Path: p.Path})
	}
	return conns, nil
}

// ListResourceUnits enumerates the resource units under one hosting
// connection.
// GET /hosting/{name}/resources
func (c *Client) ListResourceUnits(ctx context.Context, connectionName string) ([]models.ResourceUnit, error) {
	var payload []struct {
		HostingUnitUID string `json:"hostingUnitUid"`
		Name           string `json:"name"`
		Path           string `json:"path"`
	}
	path := fmt.Sprintf("/hosting/%s/resources", url.PathEscape(connectionName))
	if err := c.do(ctx, http.MethodGet, path, nil, "", &payload); err != nil {
		return nil, err
	}
	units := make([]models.ResourceUnit, 0, len(payload))
	for _, p := range payload {
		units = append(units, models.ResourceUnit{
			HostingUnitUID: p.HostingUnitUID,
			Name:           p.Name,
			Path:           p.Path,
			ConnectionName: connectionName,
		})
	}
	return units, nil
}

// GetActiveTask returns the provisioning task currently flagged active for a
// resource unit, or nil when there is none. The backend surfaces at most one
// task per call regardless of how many are truly active; exhaustive draining
// requires re-querying after every stop/remove.
// GET /resources/{uid}/tasks?active=true
func (c *Client) GetActiveTask(ctx context.Context, hostingUnitUID string) (*models.ProvisioningTask, error) {
	path := fmt.Sprintf("/resources/%s/tasks?active=true", url.PathEscape(hostingUnitUID))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
		var payload struct {
			TaskID         string `json:"taskId"`
			HostingUnitUID string `json:"hostingUnitUid"`
			Active         bool   `json:"active"`
			Type           string `json:"type"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("failed to decode task: %w", err)
		}
		return &models.ProvisioningTask{
			TaskID:         payload.TaskID,
			HostingUnitUID: payload.HostingUnitUID,
			Active:         payload.Active,
			Type:           payload.Type,
		}, nil
	case http.StatusUnauthorized:
		return nil, srvErrors.NewUnauthorizedError()
	default:
		return nil, fmt.Errorf("active task query failed: %s", resp.Status)
	}
}

// StopTask asks the broker to stop a provisioning task. loggingID correlates
// the mutation with an open audit operation.
// POST /tasks/{id}/stop
func (c *Client) StopTask(ctx context.Context, taskID, loggingID string) error {
	path := fmt.Sprintf("/tasks/%s/stop", url.PathEscape(taskID))
	return c.do(ctx, http.MethodPost, path, nil, loggingID, nil)
}

// RemoveTask removes a stopped provisioning task.
// DELETE /tasks/{id}
func (c *Client) RemoveTask(ctx context.Context, taskID, loggingID string) error {
	path := fmt.Sprintf("/tasks/%s", url.PathEscape(taskID))
	return c.do(ctx, http.MethodDelete, path, nil, loggingID, nil)
}

// DeleteResourceUnit deletes one resource-unit object.
// DELETE /resources/{uid}
func (c *Client) DeleteResourceUnit(ctx context.Context, hostingUnitUID, loggingID string) error {
	path := fmt.Sprintf("/resources/%s", url.PathEscape(hostingUnitUID))
	return c.do(ctx, http.MethodDelete, path, nil, loggingID, nil)
}

// DeleteHostingConnection deletes the hosting-connection object.
// DELETE /hosting/{name}
func (c *Client) DeleteHostingConnection(ctx context.Context, name, loggingID string) error {
	path := fmt.Sprintf("/hosting/%s", url.PathEscape(name))
	return c.do(ctx, http.MethodDelete, path, nil, loggingID, nil)
}

// DeleteHypervisorConnection deletes the broker-side hypervisor-connection
// object matching a hosting connection.
// DELETE /hypervisors/{name}
func (c *Client) DeleteHypervisorConnection(ctx context.Context, name, loggingID string) error {
	path := fmt.Sprintf("/hypervisors/%s", url.PathEscape(name))
	return c.do(ctx, http.MethodDelete, path, nil, loggingID, nil)
}

// StartAuditOperation opens an audit record in the configuration-logging
// subsystem and returns its id.
// POST /logging/operations
func (c *Client) StartAuditOperation(ctx context.Context, op models.AuditOperation) (string, error) {
	body := struct {
		Text      string   `json:"text"`
		Source    string   `json:"source"`
		Type      string   `json:"operationType"`
		TargetIDs []string `json:"targetIds"`
	}{
		Text:      op.Text,
		Source:    op.Source,
		Type:      string(op.Type),
		TargetIDs: op.TargetIDs,
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/logging/operations", body, "", &payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}

// StopAuditOperation closes an audit record with its final success flag.
// POST /logging/operations/{id}/stop
func (c *Client) StopAuditOperation(ctx context.Context, operationID string, succeeded bool) error {
	body := struct {
		Succeeded bool `json:"isSuccessful"`
	}{Succeeded: succeeded}
	path := fmt.Sprintf("/logging/operations/%s/stop", url.PathEscape(operationID))
	return c.do(ctx, http.MethodPost, path, body, "", nil)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, loggingID string, out any) error {
	if loggingID != "" {
		sep := "?"
		if u, err := url.Parse(path); err == nil && u.RawQuery != "" {
			sep = "&"
		}
		path = path + sep + "loggingId=" + url.QueryEscape(loggingID)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	case http.StatusUnauthorized:
		return srvErrors.NewUnauthorizedError()
	default:
		return fmt.Errorf("%s %s failed: %s", method, path, resp.Status)
	}

	if out != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
