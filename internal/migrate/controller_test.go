package migrate

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/config"
	"github.com/spec-kit/desk-migrator/internal/desk"
	"github.com/spec-kit/desk-migrator/internal/httpexec"
	"github.com/spec-kit/desk-migrator/internal/observability"
	"github.com/spec-kit/desk-migrator/internal/zendesk"
)

const (
	deskSite    = "https://support.example.com"
	zendeskSite = "https://acme.zendesk.example.com"
)

func newTestMigrator(t *testing.T, ids map[int]int64) *Migrator {
	t.Helper()
	httpmock.Activate()
	t.Cleanup(httpmock.DeactivateAndReset)

	cfg := &config.Config{
		Desk:    config.DeskConfig{Site: deskSite, Email: "ops@example.com", Password: "secret"},
		Zendesk: config.ZendeskConfig{Site: zendeskSite, Email: "ops@example.com", Token: "api-token", AgentID: "agent-1"},
		Migration: config.MigrationConfig{
			Workers:   2,
			BatchSize: 100,
		},
	}

	logger := zap.NewNop()
	exec := httpexec.New(0, time.Second, logger)
	return New(cfg, Dependencies{
		Desk:     desk.NewClient(cfg.Desk, exec, logger),
		Zendesk:  zendesk.NewClient(cfg.Zendesk, exec, logger),
		Resolver: &stubResolver{ids: ids},
		Journal:  nil,
		Progress: observability.NewProgress(),
		Logger:   logger,
	})
}

func registerAgent(t *testing.T) {
	t.Helper()
	httpmock.RegisterResponder("GET", zendeskSite+"/api/v2/users/agent-1",
		httpmock.NewStringResponder(http.StatusOK, `{"user":{"id":9000}}`))
}

func emptyEntriesResponder(pages *[]string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		if pages != nil {
			*pages = append(*pages, req.URL.Query().Get("page"))
		}
		return httpmock.NewStringResponse(http.StatusOK, `{"_embedded":{"entries":[]}}`), nil
	}
}

func TestEnrichCase_PaginatesByReportedCounts(t *testing.T) {
	m := newTestMigrator(t, nil)

	var replyPages, notePages, attachmentPages []string
	httpmock.RegisterResponder("GET", deskSite+"/api/v2/cases/42/replies",
		emptyEntriesResponder(&replyPages))
	httpmock.RegisterResponder("GET", deskSite+"/api/v2/cases/42/notes",
		emptyEntriesResponder(&notePages))
	httpmock.RegisterResponder("GET", deskSite+"/api/v2/cases/42/attachments",
		emptyEntriesResponder(&attachmentPages))

	c := &desk.Case{ID: 42, NumReplies: 250, NumNotes: 1, NumAttachments: 0}
	require.NoError(t, m.enrichCase(context.Background(), c))

	// 250 replies at 100 per page means exactly three fetches.
	assert.Equal(t, []string{"1", "2", "3"}, replyPages)
	assert.Equal(t, []string{"1"}, notePages)
	assert.Empty(t, attachmentPages)
}

func TestPagesFor(t *testing.T) {
	assert.Equal(t, 0, pagesFor(0))
	assert.Equal(t, 1, pagesFor(1))
	assert.Equal(t, 1, pagesFor(100))
	assert.Equal(t, 2, pagesFor(101))
	assert.Equal(t, 3, pagesFor(250))
}

func reprocessCase() *desk.Case {
	created := time.Date(2015, 6, 1, 9, 0, 0, 0, time.UTC)
	return &desk.Case{
		ID:        42,
		Subject:   "printer on fire",
		Priority:  8,
		Status:    "resolved",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
		UserID:    777,
		Messages: []desk.Message{
			{Direction: "in", Body: "help", UpdatedAt: created, CreatorID: 777},
			{Direction: "out", Body: "on it", UpdatedAt: created.Add(time.Hour)},
			{Direction: "in", Body: "thanks", UpdatedAt: created.Add(2 * time.Hour), CreatorID: 777},
		},
	}
}

func registerTicketSearch(t *testing.T, body string) {
	t.Helper()
	httpmock.RegisterResponder("GET", zendeskSite+"/api/v2/search.json",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "type:ticket external_id:42", req.URL.Query().Get("query"))
			return httpmock.NewStringResponse(http.StatusOK, body), nil
		})
}

func TestMigrateTicket_NewTicketQueuesCreate(t *testing.T) {
	m := newTestMigrator(t, map[int]int64{777: 111})
	registerAgent(t)
	registerTicketSearch(t, `{"count":0,"results":[]}`)

	require.NoError(t, m.start(context.Background(), ModeTickets))
	m.migrateTicket(context.Background(), reprocessCase())
	m.pool.Join()
	m.pool.Close()

	assert.Equal(t, 1, m.tickets.Len())
	assert.Equal(t, 0, m.updates.Len())

	counters := m.progress.Snapshot()
	assert.Equal(t, int64(1), counters[observability.CounterTicketsQueued])
	assert.Zero(t, counters[observability.CounterRecordsFailed])
}

func TestMigrateTicket_ExistingTicketQueuesDeltaAndSync(t *testing.T) {
	m := newTestMigrator(t, map[int]int64{777: 111})
	registerAgent(t)
	registerTicketSearch(t, `{"count":1,"results":[{"id":500}]}`)
	httpmock.RegisterResponder("GET", zendeskSite+"/api/v2/tickets/500.json",
		httpmock.NewStringResponder(http.StatusOK, `{"ticket":{"id":500,"comment_count":1}}`))

	require.NoError(t, m.start(context.Background(), ModeTickets))
	m.migrateTicket(context.Background(), reprocessCase())
	m.pool.Join()
	m.pool.Close()

	// Three source comments minus one at the destination leaves a delta of
	// two comment updates, plus the unconditional field sync.
	assert.Equal(t, 3, m.updates.Len())
	assert.Equal(t, 0, m.tickets.Len())

	counters := m.progress.Snapshot()
	assert.Equal(t, int64(3), counters[observability.CounterUpdatesQueued])
}

func TestMigrateTicket_AmbiguousExternalIDSkips(t *testing.T) {
	m := newTestMigrator(t, map[int]int64{777: 111})
	registerAgent(t)
	registerTicketSearch(t, `{"count":2,"results":[{"id":500},{"id":501}]}`)

	require.NoError(t, m.start(context.Background(), ModeTickets))
	m.migrateTicket(context.Background(), reprocessCase())
	m.pool.Join()
	m.pool.Close()

	assert.Equal(t, 0, m.tickets.Len())
	assert.Equal(t, 0, m.updates.Len())
	assert.Zero(t, m.progress.Snapshot()[observability.CounterRecordsFailed])
}

func TestMigrateTicket_UnresolvedRequesterJournalsFailure(t *testing.T) {
	m := newTestMigrator(t, nil)
	registerAgent(t)

	require.NoError(t, m.start(context.Background(), ModeTickets))
	m.migrateTicket(context.Background(), reprocessCase())
	m.pool.Join()
	m.pool.Close()

	assert.Equal(t, 0, m.tickets.Len())
	assert.Equal(t, int64(1), m.progress.Snapshot()[observability.CounterRecordsFailed])
}

func TestStart_RejectsUnknownMode(t *testing.T) {
	m := newTestMigrator(t, nil)
	registerAgent(t)

	err := m.start(context.Background(), Mode("x"))
	require.Error(t, err)
}

func TestStart_FailsWhenAgentMissing(t *testing.T) {
	m := newTestMigrator(t, nil)
	httpmock.RegisterResponder("GET", zendeskSite+"/api/v2/users/agent-1",
		httpmock.NewStringResponder(http.StatusOK, `{"user":{"id":0}}`))

	err := m.start(context.Background(), ModeTickets)
	require.Error(t, err)
}

const customerListing = `{
  "total_entries": 2,
  "_embedded": {
    "entries": [
      {"id": "cust-1", "first_name": "Ada", "last_name": "Lovelace",
       "emails": [{"type": "work", "value": "a@example.com"}]},
      {"id": "cust-2", "first_name": "Grace", "last_name": "Hopper",
       "emails": [{"type": "work", "value": "g@example.com"}]}
    ]
  }
}`

func TestRun_UserModeEndToEnd(t *testing.T) {
	m := newTestMigrator(t, nil)
	registerAgent(t)

	// One listing responder serves both the page-count probe and the page
	// fetch.
	httpmock.RegisterResponder("GET", deskSite+"/api/v2/customers",
		httpmock.NewStringResponder(http.StatusOK, customerListing))
	httpmock.RegisterResponder("POST", zendeskSite+"/api/v2/users/create_or_update_many.json",
		httpmock.NewStringResponder(http.StatusOK, `{"job_status":{"id":"job-1"}}`))
	httpmock.RegisterResponder("GET", zendeskSite+"/api/v2/search.json",
		httpmock.NewStringResponder(http.StatusOK, `{"count":2,"results":[]}`))

	require.NoError(t, m.Run(context.Background(), ModeUsers))

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+zendeskSite+"/api/v2/users/create_or_update_many.json"])
	// Per-role verification: end-user, agent, admin.
	assert.Equal(t, 3, info["GET "+zendeskSite+"/api/v2/search.json"])

	counters := m.progress.Snapshot()
	assert.Equal(t, int64(2), counters[observability.CounterUsersQueued])
	assert.Equal(t, int64(1), counters[observability.CounterBatchesPosted])
	assert.Equal(t, int64(2), counters[observability.CounterRecordsDispatched])
	assert.Equal(t, 0, m.users.Len())
}

func TestRun_VerificationZeroCountFails(t *testing.T) {
	m := newTestMigrator(t, nil)
	registerAgent(t)

	httpmock.RegisterResponder("GET", deskSite+"/api/v2/customers",
		httpmock.NewStringResponder(http.StatusOK, `{"total_entries":0,"_embedded":{"entries":[]}}`))
	httpmock.RegisterResponder("GET", zendeskSite+"/api/v2/search.json",
		httpmock.NewStringResponder(http.StatusOK, `{"count":0,"results":[]}`))

	err := m.Run(context.Background(), ModeUsers)
	require.Error(t, err)
}

func TestReadIDFile(t *testing.T) {
	path := t.TempDir() + "/ids.txt"
	content := "42\n\n 43 \n44\n"
	require.NoError(t, writeTestFile(path, content))

	ids, err := readIDFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"42", "43", "44"}, ids)
}

func TestReadIDFile_Missing(t *testing.T) {
	_, err := readIDFile(t.TempDir() + "/absent.txt")
	require.Error(t, err)
}

func TestReprocess_TicketMode(t *testing.T) {
	m := newTestMigrator(t, map[int]int64{777: 111})
	registerAgent(t)
	registerTicketSearch(t, `{"count":0,"results":[]}`)

	httpmock.RegisterResponder("GET", deskSite+"/api/v2/cases/search",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "42", req.URL.Query().Get("case_id"))
			return httpmock.NewStringResponse(http.StatusOK, `{
                "_embedded": {"entries": [{
                    "id": 42,
                    "subject": "printer on fire",
                    "priority": 8,
                    "status": "resolved",
                    "created_at": "2015-06-01T09:00:00Z",
                    "updated_at": "2015-06-01T10:00:00Z",
                    "_embedded": {
                        "customer": {"id": 777},
                        "message": {
                            "body": "help",
                            "status": "received",
                            "updated_at": "2015-06-01T09:00:00Z",
                            "_links": {"self": {"href": "/api/v2/cases/42/replies/1"}}
                        }
                    }
                }]}
            }`), nil
		})
	httpmock.RegisterResponder("POST", zendeskSite+"/api/v2/imports/tickets/create_many.json",
		httpmock.NewStringResponder(http.StatusOK, `{"job_status":{"id":"job-2"}}`))

	path := t.TempDir() + "/ids.txt"
	require.NoError(t, writeTestFile(path, "42\n"))

	require.NoError(t, m.Reprocess(context.Background(), ModeTickets, path))

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+zendeskSite+"/api/v2/imports/tickets/create_many.json"])
	assert.Equal(t, int64(1), m.progress.Snapshot()[observability.CounterTicketsQueued])
	assert.Equal(t, 0, m.tickets.Len())
}

func writeTestFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
