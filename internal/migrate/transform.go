package migrate

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/desk"
	"github.com/spec-kit/desk-migrator/internal/zendesk"
)

// placeholderBody replaces blank message bodies; the destination rejects
// comments without one, the source never required it.
const placeholderBody = "No message"

const (
	migratedUserRole = "end-user"
	ticketTag        = "from_desk"
	userTagPrefix    = "desk_user_before_"
	facebookHost     = "graph.facebook.com"
)

// UserResolver finds the destination id for a source user.
type UserResolver interface {
	UserID(ctx context.Context, sourceID int) (int64, error)
}

// Transformer holds the fixed domain mapping from source records to
// destination payloads.
type Transformer struct {
	resolve UserResolver
	agentID int64
	now     func() time.Time
	logger  *zap.Logger
}

// NewTransformer constructs a transformer posting on behalf of the given
// migration agent.
func NewTransformer(resolve UserResolver, agentID int64, logger *zap.Logger) *Transformer {
	return &Transformer{resolve: resolve, agentID: agentID, now: time.Now, logger: logger}
}

// User converts a source customer into a destination user payload.
func (t *Transformer) User(customer desk.Customer) zendesk.User {
	user := zendesk.User{
		Name:           customer.FirstName + " " + customer.LastName,
		Role:           migratedUserRole,
		ExternalID:     customer.ID,
		RemotePhotoURL: customer.Avatar,
		Verified:       true,
		Tags:           []string{userTagPrefix + t.now().Format("2006-01-02")},
	}
	if len(customer.Emails) > 0 {
		primary := customer.Emails[0].Value
		user.Email = &primary
	}

	identities := []zendesk.Identity{}
	if len(customer.Emails) > 1 {
		for _, email := range customer.Emails[1:] {
			identities = append(identities, zendesk.Identity{
				Type: "email", Value: email.Value, Verified: true,
			})
		}
	}
	if customer.Twitter != nil {
		identities = append(identities, zendesk.Identity{
			Type: "twitter", Value: customer.Twitter.Handle, Verified: true,
		})
	}
	if customer.Facebook != nil {
		identities = append(identities, zendesk.Identity{
			Type: "facebook", Value: t.facebookIdentityValue(customer.Facebook.ImageURL), Verified: true,
		})
	}
	user.Identities = identities
	return user
}

// facebookIdentityValue extracts the numeric user id from a
// graph.facebook.com/<id>/picture URL. Anything else falls back to the
// whole URL so the identity is never lost, only less precise.
func (t *Transformer) facebookIdentityValue(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host != facebookHost {
		t.logger.Error("photo url is not a facebook graph url, falling back to full url",
			zap.String("url", rawURL))
		return rawURL
	}
	segments := strings.Split(parsed.Path, "/")
	if len(segments) == 3 {
		if _, err := strconv.Atoi(segments[1]); err == nil {
			return segments[1]
		}
	}
	t.logger.Error("photo url has no numeric id, falling back to full url",
		zap.String("url", rawURL))
	return rawURL
}

// Ticket converts an enriched source case into a destination ticket
// payload. It fails when any referenced author cannot be resolved at the
// destination; the case must then be skipped, never created orphaned.
func (t *Transformer) Ticket(ctx context.Context, c *desk.Case, uploads []UploadToken) (*zendesk.TicketCreate, error) {
	requesterID, err := t.resolve.UserID(ctx, c.UserID)
	if err != nil {
		t.logger.Error("could not resolve requester for case, not posting",
			zap.Int("case_id", c.ID),
			zap.Int("user_id", c.UserID),
			zap.Error(err))
		return nil, err
	}

	pending := slices.Clone(uploads)
	comments := make([]zendesk.CommentCreate, 0, len(c.Messages)+len(c.Notes))
	for _, message := range c.Messages {
		comment := zendesk.CommentCreate{
			Value:    messageBody(message.Body),
			AuthorID: t.agentID,
			// The source tracks drafts, the destination does not; the
			// updated time is the closest thing to a publish time.
			CreatedAt: message.UpdatedAt,
			Uploads:   []string{},
			Public:    true,
		}
		if message.URI != "" {
			for _, upload := range pending {
				if upload.MessageURI == message.URI {
					comment.Uploads = append(comment.Uploads, upload.Token)
				}
			}
			pending = slices.DeleteFunc(pending, func(u UploadToken) bool {
				return u.MessageURI == message.URI
			})
		}
		if message.Direction == "in" {
			comment.AuthorID = requesterID
			if message.CreatorID != c.UserID {
				creatorID, err := t.resolve.UserID(ctx, message.CreatorID)
				if err != nil {
					t.logger.Error("could not resolve message creator for case, not posting",
						zap.Int("case_id", c.ID),
						zap.Int("creator_id", message.CreatorID),
						zap.Error(err))
					return nil, err
				}
				comment.AuthorID = creatorID
			}
		}
		comments = append(comments, comment)
	}
	for _, note := range c.Notes {
		comments = append(comments, zendesk.CommentCreate{
			Value:     messageBody(note.Body),
			AuthorID:  t.agentID,
			CreatedAt: note.UpdatedAt,
			Uploads:   []string{},
			Public:    false,
		})
	}

	// Attachments with no matching reply fall back onto the first comment.
	if len(pending) > 0 {
		if len(comments) == 0 {
			t.logger.Error("case has orphaned attachments but no comments to carry them",
				zap.Int("case_id", c.ID),
				zap.Int("orphaned", len(pending)))
		} else {
			for _, upload := range pending {
				comments[0].Uploads = append(comments[0].Uploads, upload.Token)
			}
		}
	}

	return &zendesk.TicketCreate{
		Subject:     c.Subject,
		Priority:    priorityLabel(c.Priority),
		Status:      statusLabel(c.Status),
		ExternalID:  c.ID,
		RequesterID: requesterID,
		AssigneeID:  t.agentID,
		Comments:    comments,
		Tags:        []string{ticketTag},
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
		SolvedAt:    c.ResolvedAt,
	}, nil
}

// CommentUpdates builds the delta updates for a ticket that already exists
// at the destination. One update carries one comment; the newest delta
// comments win, applied oldest first for stable replay.
func (t *Transformer) CommentUpdates(ticket *zendesk.TicketCreate, destID int64, delta int) []zendesk.TicketUpdate {
	if delta <= 0 {
		return nil
	}
	updates := make([]zendesk.TicketUpdate, 0, len(ticket.Comments))
	for _, comment := range ticket.Comments {
		updates = append(updates, zendesk.TicketUpdate{
			ID: destID,
			Comment: &zendesk.CommentUpdate{
				Body:      comment.Value,
				AuthorID:  comment.AuthorID,
				CreatedAt: comment.CreatedAt,
				Uploads:   comment.Uploads,
				Public:    comment.Public,
			},
		})
	}
	slices.SortStableFunc(updates, func(a, b zendesk.TicketUpdate) int {
		return b.Comment.CreatedAt.Compare(a.Comment.CreatedAt)
	})
	if delta < len(updates) {
		updates = updates[:delta]
	}
	slices.Reverse(updates)
	return updates
}

// SyncUpdate carries the ticket's own fields to an already-migrated
// destination ticket, with no comment attached.
func (t *Transformer) SyncUpdate(ticket *zendesk.TicketCreate, destID int64) zendesk.TicketUpdate {
	return zendesk.TicketUpdate{
		ID:          destID,
		Subject:     ticket.Subject,
		Priority:    ticket.Priority,
		Status:      ticket.Status,
		ExternalID:  ticket.ExternalID,
		RequesterID: ticket.RequesterID,
		AssigneeID:  ticket.AssigneeID,
		Tags:        ticket.Tags,
	}
}

func messageBody(body string) string {
	if strings.TrimSpace(body) == "" {
		return placeholderBody
	}
	return body
}

// priorityLabel maps the source's 1-10 numeric scale onto the
// destination's vocabulary.
func priorityLabel(priority int) string {
	switch {
	case priority >= 4 && priority <= 6:
		return "normal"
	case priority >= 7 && priority <= 9:
		return "high"
	case priority == 10:
		return "urgent"
	default:
		return "low"
	}
}

// statusLabel translates the one status name the two systems disagree on.
func statusLabel(status string) string {
	if status == "resolved" {
		return "solved"
	}
	return status
}

// UploadToken pairs an uploaded attachment with the source message it was
// attached to. MessageURI is empty for orphaned attachments.
type UploadToken struct {
	Token      string
	MessageURI string
}
