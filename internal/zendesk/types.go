package zendesk

import "time"

// Identity is a verified side-channel identity on a user: extra emails,
// a twitter handle, or a facebook id carried over from the source profile.
type Identity struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Verified bool   `json:"verified"`
}

// User is a create_or_update_many payload element. Email is a pointer so a
// user without addresses serializes as null rather than an empty string,
// which would collide on the destination's duplicate-email checks.
type User struct {
	Name           string     `json:"name"`
	Email          *string    `json:"email"`
	Role           string     `json:"role"`
	ExternalID     string     `json:"external_id"`
	Identities     []Identity `json:"identities"`
	RemotePhotoURL string     `json:"remote_photo_url,omitempty"`
	Verified       bool       `json:"verified"`
	Tags           []string   `json:"tags"`
}

// CommentCreate is a comment inside a ticket import payload.
type CommentCreate struct {
	Value     string    `json:"value"`
	AuthorID  int64     `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	Uploads   []string  `json:"uploads"`
	Public    bool      `json:"public"`
}

// CommentUpdate is the single comment appended by one update call. The
// update API names the body field differently from the import API.
type CommentUpdate struct {
	Body      string    `json:"body"`
	AuthorID  int64     `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	Uploads   []string  `json:"uploads"`
	Public    bool      `json:"public"`
}

// TicketCreate is a create_many payload element.
type TicketCreate struct {
	Subject     string          `json:"subject"`
	Priority    string          `json:"priority"`
	Status      string          `json:"status"`
	ExternalID  int             `json:"external_id"`
	RequesterID int64           `json:"requester_id"`
	AssigneeID  int64           `json:"assignee_id"`
	Comments    []CommentCreate `json:"comments"`
	Tags        []string        `json:"tags"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at,omitzero"`
	SolvedAt    *time.Time      `json:"solved_at,omitempty"`
}

// TicketUpdate is an update_many payload element. The API applies at most
// one comment per update, so comment deltas become one TicketUpdate each;
// a field-only sync leaves Comment nil.
type TicketUpdate struct {
	ID          int64          `json:"id"`
	Subject     string         `json:"subject,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	Status      string         `json:"status,omitempty"`
	ExternalID  int            `json:"external_id,omitempty"`
	RequesterID int64          `json:"requester_id,omitempty"`
	AssigneeID  int64          `json:"assignee_id,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Comment     *CommentUpdate `json:"comment,omitempty"`
}
