package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/desk"
	"github.com/spec-kit/desk-migrator/internal/httpexec"
	"github.com/spec-kit/desk-migrator/internal/observability"
)

// enrichCase fills a case's replies, notes and attachments. Each
// sub-resource paginates independently by the count the listing reported.
func (m *Migrator) enrichCase(ctx context.Context, c *desk.Case) error {
	for page := 1; page <= pagesFor(c.NumReplies); page++ {
		replies, err := m.desk.Replies(ctx, c.ID, page)
		if err != nil {
			return fmt.Errorf("fetching replies page %d: %w", page, err)
		}
		c.Messages = append(c.Messages, replies...)
	}
	for page := 1; page <= pagesFor(c.NumNotes); page++ {
		notes, err := m.desk.Notes(ctx, c.ID, page)
		if err != nil {
			return fmt.Errorf("fetching notes page %d: %w", page, err)
		}
		c.Notes = append(c.Notes, notes...)
	}
	for page := 1; page <= pagesFor(c.NumAttachments); page++ {
		attachments, err := m.desk.Attachments(ctx, c.ID, page)
		if err != nil {
			return fmt.Errorf("fetching attachments page %d: %w", page, err)
		}
		c.Attachments = append(c.Attachments, attachments...)
	}
	return nil
}

// uploadAttachments moves each attachment's content from source to
// destination and collects the upload tokens. Individual failures skip
// that one attachment; the ticket still migrates without it.
func (m *Migrator) uploadAttachments(ctx context.Context, c *desk.Case) []UploadToken {
	tokens := make([]UploadToken, 0, len(c.Attachments))
	for _, attachment := range c.Attachments {
		content, err := m.desk.Download(ctx, attachment.ContentURL)
		if err != nil || len(content) == 0 {
			m.logger.Error("could not download attachment, skipping",
				zap.Int("case_id", c.ID),
				zap.String("file_name", attachment.FileName),
				zap.Error(err))
			continue
		}
		token, err := m.zendesk.Upload(ctx, attachment.FileName, content)
		if err != nil {
			m.logger.Error("could not upload attachment, skipping",
				zap.Int("case_id", c.ID),
				zap.String("file_name", attachment.FileName),
				zap.Error(err))
			continue
		}
		tokens = append(tokens, UploadToken{Token: token, MessageURI: attachment.MessageURI})
		m.progress.Inc(observability.CounterAttachmentsMoved)
	}
	return tokens
}

func pagesFor(count int) int {
	if count <= 0 {
		return 0
	}
	return (count + httpexec.PageSize - 1) / httpexec.PageSize
}
