package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/notify"
	"github.com/spec-kit/ticket-engine/internal/repository/memory"
	"github.com/spec-kit/ticket-engine/internal/storage"
	"github.com/spec-kit/ticket-engine/internal/ticketcode"
)

const (
	companyID     int64 = 1
	otherCompany  int64 = 2
	supportDept   int64 = 10
	billingDept   int64 = 11
	foreignDept   int64 = 20
	aliceID       int64 = 1
	bobID         int64 = 2
	acmeClient    int64 = 50
	globexClient  int64 = 51
	foreignClient int64 = 60
	acmeContact   int64 = 70
	acmeService   int64 = 80
	globexService int64 = 81

	fieldOrder    int64 = 100
	fieldPassword int64 = 101
	fieldPlan     int64 = 102
	fieldScratch  int64 = 103
)

var epoch = time.Date(2024, time.March, 4, 9, 0, 0, 0, time.UTC) // a Monday

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeAttachments struct {
	mu      sync.Mutex
	written []string
	deleted []string
	failOn  string
}

func (f *fakeAttachments) Write(_ context.Context, _ []byte, name string) (storage.Stored, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn != "" && name == f.failOn {
		return storage.Stored{}, errors.New("disk full")
	}
	path := fmt.Sprintf("/files/%d-%s", len(f.written)+1, name)
	f.written = append(f.written, path)
	return storage.Stored{Path: path, Name: name}, nil
}

func (f *fakeAttachments) Delete(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return nil
}

// fakeVault marks values instead of encrypting them so tests can see what was stored.
type fakeVault struct{}

func (fakeVault) Encrypt(plain string) (string, error) { return "sealed:" + plain, nil }

func (fakeVault) Decrypt(sealed string) (string, error) {
	if !strings.HasPrefix(sealed, "sealed:") {
		return "", errors.New("not sealed")
	}
	return strings.TrimPrefix(sealed, "sealed:"), nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
	inner  events.Dispatcher
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	return d.inner.Publish(ctx, event)
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {
	d.inner.Subscribe(eventType, handler)
}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

func (d *recordingDispatcher) reset() {
	d.mu.Lock()
	d.events = nil
	d.mu.Unlock()
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (t *fakeTransport) Send(_ context.Context, msg notify.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	return t.err
}

func (t *fakeTransport) templates() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sent))
	for _, m := range t.sent {
		out = append(out, m.TemplateID)
	}
	return out
}

type harness struct {
	store       *memory.Store
	clock       *fakeClock
	files       *fakeAttachments
	events      *recordingDispatcher
	tickets     *TicketService
	threads     *ThreadService
	merges      *MergeService
	automation  *AutomationService
	deps        Dependencies
	supportDept domain.Department
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	store.PutCompany(domain.Company{ID: companyID, Name: "Acme Hosting", Locale: "en"})
	store.PutCompany(domain.Company{ID: otherCompany, Name: "Other", Locale: "de"})

	support := domain.Department{
		ID:        supportDept,
		CompanyID: companyID,
		Name:      "Support",
		Email:     "support@acme.test",
		Fields: []domain.CustomFieldSchema{
			{ID: fieldOrder, DepartmentID: supportDept, Label: "Order", Type: domain.FieldTypeText, Required: true},
			{ID: fieldPassword, DepartmentID: supportDept, Label: "Root password", Type: domain.FieldTypePassword, Required: true, Encrypted: true},
			{ID: fieldPlan, DepartmentID: supportDept, Label: "Plan", Type: domain.FieldTypeSelect, Options: []string{"basic", "pro"}},
			{ID: fieldScratch, DepartmentID: supportDept, Label: "Scratch", Type: domain.FieldTypeText, AutoDelete: true},
		},
	}
	store.PutDepartment(support)
	store.PutDepartment(domain.Department{ID: billingDept, CompanyID: companyID, Name: "Billing"})
	store.PutDepartment(domain.Department{ID: foreignDept, CompanyID: otherCompany, Name: "Elsewhere"})

	store.PutStaff(supportDept, domain.DepartmentStaff{
		Staff:       domain.StaffMember{ID: aliceID, CompanyID: companyID, Name: "Alice", Email: "alice@acme.test", Signature: "-- Alice", Active: true},
		Preferences: domain.NotificationPreferences{domain.TicketPriorityMedium: domain.NotifyPrimary},
	})
	store.PutStaff(supportDept, domain.DepartmentStaff{
		Staff:       domain.StaffMember{ID: bobID, CompanyID: companyID, Name: "Bob", Email: "bob@acme.test", MobileEmail: "bob@sms.test", Active: true},
		Preferences: domain.NotificationPreferences{domain.TicketPriorityMedium: domain.NotifyMobile},
	})

	store.PutClient(domain.Client{ID: acmeClient, CompanyID: companyID, Name: "Wile", Email: "wile@client.test", Locale: "fr"})
	store.PutClient(domain.Client{ID: globexClient, CompanyID: companyID, Name: "Hank", Email: "hank@globex.test"})
	store.PutClient(domain.Client{ID: foreignClient, CompanyID: otherCompany, Name: "Far", Email: "far@away.test"})
	store.PutContact(domain.Contact{ID: acmeContact, ClientID: acmeClient, Name: "Road", Email: "road@client.test"})
	store.PutService(domain.Service{ID: acmeService, ClientID: acmeClient})
	store.PutService(domain.Service{ID: globexService, ClientID: globexClient})

	codes, err := ticketcode.New(6)
	require.NoError(t, err)

	clock := &fakeClock{now: epoch}
	h := &harness{
		store:       store,
		clock:       clock,
		files:       &fakeAttachments{},
		events:      &recordingDispatcher{inner: events.NewInMemoryDispatcher(nil)},
		supportDept: support,
	}
	h.deps = Dependencies{
		Store:       store,
		Dispatcher:  h.events,
		Attachments: h.files,
		Vault:       fakeVault{},
		Codes:       codes,
		Clock:       clock.Now,
	}
	h.tickets = NewTicketService(h.deps)
	h.threads = NewThreadService(h.deps)
	h.merges = NewMergeService(h.deps)
	h.automation = NewAutomationService(h.deps)
	return h
}

// requiredFields satisfies the support department's required custom fields.
func requiredFields() map[int64]string {
	return map[int64]string{fieldOrder: "ORD-1", fieldPassword: "hunter2"}
}

func (h *harness) createClientTicket(t *testing.T, clientID int64) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.Create(context.Background(), CreateTicketInput{
		DepartmentID: supportDept,
		ClientID:     domain.Int64Ptr(clientID),
		Summary:      "Server down",
		Details:      "My server does not respond.",
		Fields:       requiredFields(),
	})
	require.NoError(t, err)
	return ticket
}

func (h *harness) createEmailTicket(t *testing.T, email string) *domain.Ticket {
	t.Helper()
	ticket, err := h.tickets.Create(context.Background(), CreateTicketInput{
		DepartmentID: billingDept,
		Email:        domain.StringPtr(email),
		Summary:      "Invoice question",
		Details:      "Why was I charged twice?",
	})
	require.NoError(t, err)
	return ticket
}

func (h *harness) thread(t *testing.T, ticketID int64) []domain.ReplyEntry {
	t.Helper()
	replies, err := h.threads.Thread(context.Background(), ticketID)
	require.NoError(t, err)
	return replies
}

func logLines(replies []domain.ReplyEntry) []string {
	var out []string
	for i := len(replies) - 1; i >= 0; i-- {
		if replies[i].Type == domain.ReplyTypeLog {
			out = append(out, replies[i].Details)
		}
	}
	return out
}
