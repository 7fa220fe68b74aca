package desk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/config"
	"github.com/spec-kit/desk-migrator/internal/httpexec"
)

// backoffHeader is the Desk rate-limit reset header honored on 429s.
const backoffHeader = "X-Rate-Limit-Reset"

const (
	customerEmbed = "facebook_user,twitter_user"
	caseEmbed     = "customer, message"
)

// Client reads customers, cases and their sub-resources from the source site.
type Client struct {
	exec   *httpexec.Executor
	site   string
	auth   httpexec.Auth
	logger *zap.Logger
}

// NewClient constructs a source API client.
func NewClient(cfg config.DeskConfig, exec *httpexec.Executor, logger *zap.Logger) *Client {
	return &Client{
		exec:   exec,
		site:   strings.TrimRight(cfg.Site, "/"),
		auth:   httpexec.Auth{Username: cfg.Email, Password: cfg.Password},
		logger: logger,
	}
}

func (c *Client) spec(operation, path string, query url.Values) httpexec.RequestSpec {
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

func pageQuery(page int) url.Values {
	return url.Values{
		"page":     []string{strconv.Itoa(page)},
		"per_page": []string{strconv.Itoa(httpexec.PageSize)},
	}
}

// CustomerPageCount discovers how many customer listing pages exist.
func (c *Client) CustomerPageCount(ctx context.Context) (int, error) {
	query := pageQuery(1)
	query.Set("embed", customerEmbed)
	return c.exec.PageCount(ctx, c.spec("desk.customers.pages", "/api/v2/customers", query))
}

// CustomerPage fetches one page of customers with embedded social profiles.
func (c *Client) CustomerPage(ctx context.Context, page int) ([]Customer, error) {
	query := pageQuery(page)
	query.Set("embed", customerEmbed)
	body, err := c.exec.Do(ctx, c.spec("desk.customers", "/api/v2/customers", query))
	if err != nil {
		return nil, err
	}
	entries, err := embeddedEntries(body)
	if err != nil {
		return nil, err
	}
	customers := make([]Customer, 0, len(entries))
	for _, entry := range entries {
		customers = append(customers, parseCustomer(entry, "_embedded"))
	}
	return customers, nil
}

// CustomerByID fetches a single customer. The individual endpoint nests the
// social profiles under _links rather than _embedded.
func (c *Client) CustomerByID(ctx context.Context, id string) (*Customer, error) {
	query := url.Values{"embed": []string{customerEmbed}}
	body, err := c.exec.Do(ctx, c.spec("desk.customer", "/api/v2/customers/"+id, query))
	if err != nil {
		return nil, err
	}
	var entry json.RawMessage = body
	customer := parseCustomer(entry, "_links")
	return &customer, nil
}

// CasePageCount discovers how many case listing pages exist.
func (c *Client) CasePageCount(ctx context.Context) (int, error) {
	query := pageQuery(1)
	query.Set("embed", caseEmbed)
	return c.exec.PageCount(ctx, c.spec("desk.cases.pages", "/api/v2/cases", query))
}

// CasePage fetches one page of cases with the owning customer and first
// message embedded.
func (c *Client) CasePage(ctx context.Context, page int) ([]Case, error) {
	query := pageQuery(page)
	query.Set("embed", caseEmbed)
	body, err := c.exec.Do(ctx, c.spec("desk.cases", "/api/v2/cases", query))
	if err != nil {
		return nil, err
	}
	return c.parseCases(body)
}

// CasesByIDs fetches specific cases by id, up to one page worth.
func (c *Client) CasesByIDs(ctx context.Context, ids []string) ([]Case, error) {
	query := pageQuery(1)
	query.Set("embed", caseEmbed)
	query.Set("case_id", strings.Join(ids, ","))
	body, err := c.exec.Do(ctx, c.spec("desk.cases.search", "/api/v2/cases/search", query))
	if err != nil {
		return nil, err
	}
	return c.parseCases(body)
}

// Replies fetches one page of a case's public replies. Draft messages are
// excluded because the destination has no draft concept.
func (c *Client) Replies(ctx context.Context, caseID, page int) ([]Message, error) {
	path := fmt.Sprintf("/api/v2/cases/%d/replies", caseID)
	body, err := c.exec.Do(ctx, c.spec("desk.replies", path, pageQuery(page)))
	if err != nil {
		return nil, err
	}
	return c.parseMessages(body)
}

// Notes fetches one page of a case's internal notes.
func (c *Client) Notes(ctx context.Context, caseID, page int) ([]Message, error) {
	path := fmt.Sprintf("/api/v2/cases/%d/notes", caseID)
	body, err := c.exec.Do(ctx, c.spec("desk.notes", path, pageQuery(page)))
	if err != nil {
		return nil, err
	}
	return c.parseMessages(body)
}

// Attachments fetches one page of a case's attachments.
func (c *Client) Attachments(ctx context.Context, caseID, page int) ([]Attachment, error) {
	path := fmt.Sprintf("/api/v2/cases/%d/attachments", caseID)
	body, err := c.exec.Do(ctx, c.spec("desk.attachments", path, pageQuery(page)))
	if err != nil {
		return nil, err
	}
	var payload struct {
		Embedded struct {
			Entries []struct {
				FileName string `json:"file_name"`
				URL      string `json:"url"`
				Links    struct {
					Reply struct {
						Href string `json:"href"`
					} `json:"reply"`
				} `json:"_links"`
			} `json:"entries"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	attachments := make([]Attachment, 0, len(payload.Embedded.Entries))
	for _, entry := range payload.Embedded.Entries {
		attachments = append(attachments, Attachment{
			FileName:   entry.FileName,
			ContentURL: entry.URL,
			MessageURI: entry.Links.Reply.Href,
		})
	}
	return attachments, nil
}

// Download fetches raw attachment content from the source site.
func (c *Client) Download(ctx context.Context, contentURL string) ([]byte, error) {
	return c.exec.Do(ctx, httpexec.RequestSpec{
		Operation:     "desk.download",
		Method:        "GET",
		URL:           contentURL,
		Auth:          c.auth,
		BackoffHeader: backoffHeader,
	})
}

func embeddedEntries(body []byte) ([]json.RawMessage, error) {
	var payload struct {
		Embedded struct {
			Entries []json.RawMessage `json:"entries"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	return payload.Embedded.Entries, nil
}

type rawCustomer struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Avatar    string `json:"avatar"`
	Emails    []struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	} `json:"emails"`
}

type rawProfiles struct {
	TwitterUser *struct {
		Handle   string `json:"handle"`
		ImageURL string `json:"image_url"`
	} `json:"twitter_user"`
	FacebookUser *struct {
		ImageURL   string `json:"image_url"`
		ProfileURL string `json:"profile_url"`
	} `json:"facebook_user"`
}

func parseCustomer(entry json.RawMessage, embedKey string) Customer {
	var raw rawCustomer
	_ = json.Unmarshal(entry, &raw)

	var wrapper map[string]json.RawMessage
	_ = json.Unmarshal(entry, &wrapper)
	var profiles rawProfiles
	if embedded, ok := wrapper[embedKey]; ok {
		_ = json.Unmarshal(embedded, &profiles)
	}

	customer := Customer{
		ID:        raw.ID,
		FirstName: raw.FirstName,
		LastName:  raw.LastName,
		Avatar:    raw.Avatar,
	}
	for _, email := range raw.Emails {
		customer.Emails = append(customer.Emails, Email{Type: email.Type, Value: email.Value})
	}
	if profiles.TwitterUser != nil {
		customer.Twitter = &TwitterUser{
			Handle:   profiles.TwitterUser.Handle,
			ImageURL: profiles.TwitterUser.ImageURL,
		}
	}
	if profiles.FacebookUser != nil {
		customer.Facebook = &FacebookUser{
			ImageURL:   profiles.FacebookUser.ImageURL,
			ProfileURL: profiles.FacebookUser.ProfileURL,
		}
	}
	return customer
}

type rawMessage struct {
	Direction string    `json:"direction"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
	Links     struct {
		Self struct {
			Href string `json:"href"`
		} `json:"self"`
		Customer struct {
			Href string `json:"href"`
		} `json:"customer"`
	} `json:"_links"`
}

func (c *Client) parseMessages(body []byte) ([]Message, error) {
	var payload struct {
		Embedded struct {
			Entries []rawMessage `json:"entries"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	messages := make([]Message, 0, len(payload.Embedded.Entries))
	for _, entry := range payload.Embedded.Entries {
		if entry.Status == "draft" {
			continue
		}
		message := Message{
			Direction: entry.Direction,
			Body:      entry.Body,
			Status:    entry.Status,
			UpdatedAt: entry.UpdatedAt,
			URI:       entry.Links.Self.Href,
		}
		if entry.Direction == "in" {
			creatorID, ok := creatorIDFromHref(entry.Links.Customer.Href)
			if !ok {
				c.logger.Info("could not find creator id of message, skipping",
					zap.String("uri", message.URI))
				continue
			}
			message.CreatorID = creatorID
		}
		messages = append(messages, message)
	}
	return messages, nil
}

// creatorIDFromHref extracts the numeric customer id from a
// "/api/v2/customers/<id>" link.
func creatorIDFromHref(href string) (int, bool) {
	parts := strings.Split(href, "/")
	if len(parts) != 5 {
		return 0, false
	}
	id, err := strconv.Atoi(parts[4])
	if err != nil {
		return 0, false
	}
	return id, true
}

type rawCase struct {
	ID         int        `json:"id"`
	Subject    string     `json:"subject"`
	Priority   int        `json:"priority"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at"`
	Embedded   struct {
		Customer struct {
			ID int `json:"id"`
		} `json:"customer"`
		Message *rawMessage `json:"message"`
	} `json:"_embedded"`
	Links struct {
		Attachments struct {
			Count int `json:"count"`
		} `json:"attachments"`
		Replies struct {
			Count int `json:"count"`
		} `json:"replies"`
		Notes struct {
			Count int `json:"count"`
		} `json:"notes"`
	} `json:"_links"`
}

func (c *Client) parseCases(body []byte) ([]Case, error) {
	var payload struct {
		Embedded struct {
			Entries []rawCase `json:"entries"`
		} `json:"_embedded"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	cases := make([]Case, 0, len(payload.Embedded.Entries))
	for _, entry := range payload.Embedded.Entries {
		caseRecord := Case{
			ID:             entry.ID,
			Subject:        entry.Subject,
			Priority:       entry.Priority,
			Status:         entry.Status,
			CreatedAt:      entry.CreatedAt,
			UpdatedAt:      entry.UpdatedAt,
			ResolvedAt:     entry.ResolvedAt,
			UserID:         entry.Embedded.Customer.ID,
			NumAttachments: entry.Links.Attachments.Count,
			NumReplies:     entry.Links.Replies.Count,
			NumNotes:       entry.Links.Notes.Count,
		}
		// The listing embeds the opening message; it is always an inbound
		// message from the case owner.
		if entry.Embedded.Message != nil {
			first := *entry.Embedded.Message
			caseRecord.Messages = append(caseRecord.Messages, Message{
				Direction: "in",
				Body:      first.Body,
				Status:    first.Status,
				UpdatedAt: first.UpdatedAt,
				URI:       first.Links.Self.Href,
				CreatorID: caseRecord.UserID,
			})
		}
		cases = append(cases, caseRecord)
	}
	return cases, nil
}
