package desk

import "time"

// Customer is a source-side end user. Desk uses string identifiers.
type Customer struct {
	ID        string
	FirstName string
	LastName  string
	Avatar    string
	Emails    []Email
	Twitter   *TwitterUser
	Facebook  *FacebookUser
}

// Email is one address on a customer. The first entry is the primary address.
type Email struct {
	Type  string
	Value string
}

// TwitterUser is a linked social profile.
type TwitterUser struct {
	Handle   string
	ImageURL string
}

// FacebookUser is a linked social profile.
type FacebookUser struct {
	ImageURL   string
	ProfileURL string
}

// Message is a case reply or note.
type Message struct {
	Direction string
	Body      string
	Status    string
	UpdatedAt time.Time
	// URI is the stable self link used to correlate attachments; message ids
	// do not match the ids attachments reference.
	URI string
	// CreatorID is set for inbound messages posted by a specific customer,
	// which may differ from the case owner.
	CreatorID int
}

// Attachment is a file on a case. MessageURI is empty for orphaned
// attachments with no associated reply.
type Attachment struct {
	FileName   string
	ContentURL string
	MessageURI string
}

// Case is a source-side ticket. The Num* counts drive sub-resource
// pagination during enrichment; Messages, Notes and Attachments are
// populated afterwards.
type Case struct {
	ID             int
	Subject        string
	Priority       int
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
	UserID         int
	NumReplies     int
	NumNotes       int
	NumAttachments int
	Messages       []Message
	Notes          []Message
	Attachments    []Attachment
}
