package apiclient

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"spmagent/internal/model"
	"spmagent/internal/roadmap"
)

type UserSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
}

type AuthResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         UserSummary `json:"user"`
}

type CreateProjectRequest struct {
	Title              string        `json:"title"`
	Description        string        `json:"description"`
	TechStack          []string      `json:"tech_stack,omitempty"`
	PlanningMode       string        `json:"planning_mode"`
	DeadlineDate       *roadmap.Date `json:"deadline_date,omitempty"`
	WorkingHoursPerDay *float64      `json:"working_hours_per_day,omitempty"`

	// IdempotencyKey is sent as the Idempotency-Key header when set.
	IdempotencyKey string `json:"-"`
}

func (r CreateProjectRequest) header() http.Header {
	if r.IdempotencyKey == "" {
		return nil
	}
	return http.Header{"Idempotency-Key": []string{r.IdempotencyKey}}
}

// Event is one frame of the creation stream.
type Event struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Login authenticates and stores the returned token pair in the session.
func (c *Client) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	err := c.postNoAuth(ctx, "/api/auth/login", map[string]string{"email": email, "password": password}, &resp)
	if err != nil {
		return nil, err
	}
	c.session.Set(resp.AccessToken, resp.RefreshToken)
	return &resp, nil
}

func (c *Client) CreateProject(ctx context.Context, req CreateProjectRequest) (*model.ProjectWithRoadmap, error) {
	resp, err := c.doAuthed(ctx, http.MethodPost, "/api/projects", req, req.header())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var p model.ProjectWithRoadmap
	if err := decode(resp, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProjectStream creates a project over the streaming endpoint, passing every frame to
// onEvent (which may be nil). It returns the new project id, or an *APIError carrying the
// error frame's sentence.
func (c *Client) CreateProjectStream(ctx context.Context, req CreateProjectRequest, onEvent func(Event)) (string, error) {
	resp, err := c.doAuthed(ctx, http.MethodPost, "/api/projects/stream", req, req.header())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
			return "", fmt.Errorf("apiclient: bad stream frame: %w", err)
		}
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case "done":
			return ev.Data, nil
		case "error":
			return "", &APIError{StatusCode: resp.StatusCode, Detail: ev.Data}
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("apiclient: read stream: %w", err)
	}
	return "", fmt.Errorf("apiclient: stream ended without a result")
}

func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var out []model.Project
	if err := c.Do(ctx, http.MethodGet, "/api/projects", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetProject(ctx context.Context, projectID string) (*model.ProjectWithRoadmap, error) {
	var out model.ProjectWithRoadmap
	if err := c.Do(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateTaskStatus(ctx context.Context, projectID, taskID string, status roadmap.TaskStatus) (*model.TaskUpdate, error) {
	path := "/api/projects/" + url.PathEscape(projectID) + "/tasks/" + url.PathEscape(taskID)
	var out model.TaskUpdate
	if err := c.Do(ctx, http.MethodPatch, path, map[string]string{"status": string(status)}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpcomingDeadlines lists open task deadlines across projects. limit <= 0 uses the server default.
func (c *Client) UpcomingDeadlines(ctx context.Context, limit int) ([]roadmap.DeadlineItem, error) {
	path := "/api/projects/deadlines"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []roadmap.DeadlineItem
	if err := c.Do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.Do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(projectID), nil, nil)
}
