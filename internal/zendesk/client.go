package zendesk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/config"
	"github.com/spec-kit/desk-migrator/internal/httpexec"
)

// backoffHeader is the destination rate-limit header honored on 429s.
const backoffHeader = "Retry-After"

// Client writes users and tickets to the destination site and answers the
// existence and count queries the engine needs.
type Client struct {
	exec   *httpexec.Executor
	site   string
	auth   httpexec.Auth
	logger *zap.Logger
}

// NewClient constructs a destination API client using token-based basic auth.
func NewClient(cfg config.ZendeskConfig, exec *httpexec.Executor, logger *zap.Logger) *Client {
	return &Client{
		exec:   exec,
		site:   strings.TrimRight(cfg.Site, "/"),
		auth:   httpexec.Auth{Username: cfg.Email + "/token", Password: cfg.Token},
		logger: logger,
	}
}

func (c *Client) getSpec(operation, path string, query url.Values) httpexec.RequestSpec {
	return httpexec.RequestSpec{
		Operation:     operation,
		Method:        "GET",
		URL:           c.site + path,
		Query:         query,
		Headers:       map[string]string{"Accept": "application/json"},
		Auth:          c.auth,
		BackoffHeader: backoffHeader,
	}
}

func (c *Client) postSpec(operation, method, path string, body []byte) httpexec.RequestSpec {
	return httpexec.RequestSpec{
		Operation:     operation,
		Method:        method,
		URL:           c.site + path,
		Body:          body,
		Headers:       map[string]string{"Content-Type": "application/json"},
		Auth:          c.auth,
		BackoffHeader: backoffHeader,
	}
}

// UserID fetches a user's numeric id by the destination's own identifier.
// Used once per run to resolve the migration agent.
func (c *Client) UserID(ctx context.Context, id string) (int64, error) {
	body, err := c.exec.Do(ctx, c.getSpec("zendesk.user", "/api/v2/users/"+id, nil))
	if err != nil {
		return 0, err
	}
	var payload struct {
		User struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	return payload.User.ID, nil
}

// SearchUserID resolves a destination user id by the source identifier
// stored in the search index. Returns 0 when no user matches.
func (c *Client) SearchUserID(ctx context.Context, sourceID int) (int64, error) {
	query := url.Values{"query": []string{fmt.Sprintf("type:user %d", sourceID)}}
	body, err := c.exec.Do(ctx, c.getSpec("zendesk.search.user", "/api/v2/search.json", query))
	if err != nil {
		return 0, err
	}
	var payload searchResult
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	if payload.Count == 0 {
		return 0, nil
	}
	return payload.Results[0].ID, nil
}

// TicketIDByExternal looks up an already-migrated ticket by external
// reference. Returns 0 when absent and -1 when the reference is ambiguous.
func (c *Client) TicketIDByExternal(ctx context.Context, externalID int) (int64, error) {
	query := url.Values{"query": []string{fmt.Sprintf("type:ticket external_id:%d", externalID)}}
	body, err := c.exec.Do(ctx, c.getSpec("zendesk.search.ticket", "/api/v2/search.json", query))
	if err != nil {
		return 0, err
	}
	var payload searchResult
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	switch {
	case payload.Count == 1:
		return payload.Results[0].ID, nil
	case payload.Count > 1:
		c.logger.Info("too many tickets with same external id",
			zap.Int("external_id", externalID),
			zap.Int("count", payload.Count))
		return -1, nil
	default:
		return 0, nil
	}
}

// CommentCount returns how many comments a destination ticket already has.
func (c *Client) CommentCount(ctx context.Context, ticketID int64) (int, error) {
	path := fmt.Sprintf("/api/v2/tickets/%d.json", ticketID)
	query := url.Values{"include": []string{"comment_count"}}
	body, err := c.exec.Do(ctx, c.getSpec("zendesk.ticket", path, query))
	if err != nil {
		return 0, err
	}
	var payload struct {
		Ticket struct {
			CommentCount int `json:"comment_count"`
		} `json:"ticket"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	return payload.Ticket.CommentCount, nil
}

// CreateOrUpdateUsers submits one bulk user batch. The destination runs the
// batch as an async job; its id is logged for operator follow-up.
func (c *Client) CreateOrUpdateUsers(ctx context.Context, users []User) error {
	data, err := json.Marshal(map[string][]User{"users": users})
	if err != nil {
		return err
	}
	body, err := c.exec.Do(ctx, c.postSpec("zendesk.users.create", "POST", "/api/v2/users/create_or_update_many.json", data))
	if err != nil {
		return err
	}
	c.logJobID("users", body)
	return nil
}

// ImportTickets submits one bulk ticket create batch.
func (c *Client) ImportTickets(ctx context.Context, tickets []TicketCreate) error {
	data, err := json.Marshal(map[string][]TicketCreate{"tickets": tickets})
	if err != nil {
		return err
	}
	body, err := c.exec.Do(ctx, c.postSpec("zendesk.tickets.create", "POST", "/api/v2/imports/tickets/create_many.json", data))
	if err != nil {
		return err
	}
	c.logJobID("tickets", body)
	return nil
}

// UpdateTickets submits one bulk ticket update batch. Callers must have
// deduplicated the batch by ticket id already.
func (c *Client) UpdateTickets(ctx context.Context, updates []TicketUpdate) error {
	data, err := json.Marshal(map[string][]TicketUpdate{"tickets": updates})
	if err != nil {
		return err
	}
	_, err = c.exec.Do(ctx, c.postSpec("zendesk.tickets.update", "PUT", "/api/v2/tickets/update_many.json", data))
	return err
}

// Upload pushes raw attachment content and returns the upload token used to
// associate it with a comment.
func (c *Client) Upload(ctx context.Context, filename string, content []byte) (string, error) {
	spec := httpexec.RequestSpec{
		Operation:     "zendesk.upload",
		Method:        "POST",
		URL:           c.site + "/api/v2/uploads.json",
		Query:         url.Values{"filename": []string{filename}},
		Body:          content,
		Headers:       map[string]string{"Content-Type": "application/binary"},
		Auth:          c.auth,
		BackoffHeader: backoffHeader,
	}
	body, err := c.exec.Do(ctx, spec)
	if err != nil {
		return "", err
	}
	var payload struct {
		Upload struct {
			Token string `json:"token"`
		} `json:"upload"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	return payload.Upload.Token, nil
}

// Count runs a search and returns the destination's record count for it.
func (c *Client) Count(ctx context.Context, searchQuery string) (int, error) {
	query := url.Values{"query": []string{searchQuery}}
	body, err := c.exec.Do(ctx, c.getSpec("zendesk.count", "/api/v2/search.json", query))
	if err != nil {
		return 0, err
	}
	var payload struct {
		Count *int `json:"count"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, err
	}
	if payload.Count == nil {
		return 0, fmt.Errorf("count missing from search response")
	}
	return *payload.Count, nil
}

type searchResult struct {
	Count   int `json:"count"`
	Results []struct {
		ID int64 `json:"id"`
	} `json:"results"`
}

func (c *Client) logJobID(kind string, body []byte) {
	var payload struct {
		JobStatus struct {
			ID string `json:"id"`
		} `json:"job_status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return
	}
	c.logger.Info("bulk job accepted",
		zap.String("kind", kind),
		zap.String("job_id", payload.JobStatus.ID))
}
