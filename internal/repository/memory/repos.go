package memory

import (
	"context"
	"sort"
	"time"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
)

type ticketRepo struct{ sh *shared }

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	st, err := r.sh.lock("tickets.create")
	if err != nil {
		return err
	}
	defer r.sh.mu.Unlock()
	ticket.ID = st.id()
	st.tickets[ticket.ID] = ticket.Clone()
	return nil
}

func (r *ticketRepo) Update(ctx context.Context, ticket *domain.Ticket) error {
	st, err := r.sh.lock("tickets.update")
	if err != nil {
		return err
	}
	defer r.sh.mu.Unlock()
	existing, ok := st.tickets[ticket.ID]
	if !ok {
		return repository.ErrNotFound
	}
	updated := ticket.Clone()
	updated.Code = existing.Code
	updated.DateAdded = existing.DateAdded
	st.tickets[ticket.ID] = updated
	return nil
}

func (r *ticketRepo) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	st, err := r.sh.lock("tickets.get")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	ticket, ok := st.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := ticket.Clone()
	return &out, nil
}

func (r *ticketRepo) CodeExists(ctx context.Context, code string) (bool, error) {
	st, err := r.sh.lock("tickets.code")
	if err != nil {
		return false, err
	}
	defer r.sh.mu.Unlock()
	for _, t := range st.tickets {
		if t.Code == code {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes the ticket and cascades to its replies, attachments, fields and reminders.
func (r *ticketRepo) Delete(ctx context.Context, id int64) error {
	st, err := r.sh.lock("tickets.delete")
	if err != nil {
		return err
	}
	defer r.sh.mu.Unlock()
	if _, ok := st.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(st.tickets, id)
	for rid, reply := range st.replies {
		if reply.TicketID != id {
			continue
		}
		delete(st.replies, rid)
		for aid, att := range st.attachments {
			if att.ReplyID == rid {
				delete(st.attachments, aid)
			}
		}
	}
	delete(st.fields, id)
	for rid, rem := range st.reminders {
		if rem.TicketID == id {
			delete(st.reminders, rid)
		}
	}
	return nil
}

func (r *ticketRepo) ListWithFilter(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	st, err := r.sh.lock("tickets.list")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()

	var out []domain.Ticket
	for _, t := range st.tickets {
		if filter.DepartmentID != nil && t.DepartmentID != *filter.DepartmentID {
			continue
		}
		if filter.StaffID != nil && (t.StaffID == nil || *t.StaffID != *filter.StaffID) {
			continue
		}
		if filter.ClientID != nil && (t.ClientID == nil || *t.ClientID != *filter.ClientID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
			continue
		}
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateUpdated.Equal(out[j].DateUpdated) {
			return out[i].DateUpdated.After(out[j].DateUpdated)
		}
		return out[i].ID > out[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ticketRepo) ListAutoCloseCandidates(ctx context.Context, departmentID int64, excluded []domain.TicketStatus, cutoff time.Time) ([]domain.Ticket, error) {
	st, err := r.sh.lock("tickets.autoclose")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()

	var out []domain.Ticket
	for _, t := range st.tickets {
		if t.DepartmentID != departmentID || containsStatus(excluded, t.Status) {
			continue
		}
		last, ok := st.lastReply(t.ID)
		if !ok || !last.Author.StaffSide() || last.DateAdded.After(cutoff) {
			continue
		}
		out = append(out, t.Clone())
	}
	sortByID(out)
	return out, nil
}

func (r *ticketRepo) ListTrashedBefore(ctx context.Context, departmentID int64, cutoff time.Time) ([]domain.Ticket, error) {
	st, err := r.sh.lock("tickets.trashed")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()

	var out []domain.Ticket
	for _, t := range st.tickets {
		if t.DepartmentID == departmentID && t.Status == domain.TicketStatusTrash && !t.DateUpdated.After(cutoff) {
			out = append(out, t.Clone())
		}
	}
	sortByID(out)
	return out, nil
}

func (r *ticketRepo) ListReminderCandidates(ctx context.Context, filter repository.ReminderFilter) ([]repository.ReminderCandidate, error) {
	st, err := r.sh.lock("tickets.reminders")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()

	terminal := []domain.TicketStatus{domain.TicketStatusClosed, domain.TicketStatusTrash}
	var out []repository.ReminderCandidate
	for _, t := range st.tickets {
		if t.DepartmentID != filter.DepartmentID {
			continue
		}
		if len(filter.Statuses) > 0 {
			if !containsStatus(filter.Statuses, t.Status) {
				continue
			}
		} else if containsStatus(terminal, t.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !containsPriority(filter.Priorities, t.Priority) {
			continue
		}
		last, ok := st.lastReply(t.ID)
		if !ok || last.DateAdded.After(filter.Cutoff) {
			continue
		}
		if st.remindedSince(t.ID, last.DateAdded) {
			continue
		}
		out = append(out, repository.ReminderCandidate{Ticket: t.Clone(), LastReply: last})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket.ID < out[j].Ticket.ID })
	return out, nil
}

func (s *state) lastReply(ticketID int64) (domain.ReplyEntry, bool) {
	var (
		last  domain.ReplyEntry
		found bool
	)
	for _, r := range s.replies {
		if r.TicketID != ticketID || r.Type != domain.ReplyTypeReply {
			continue
		}
		if !found || newer(r, last) {
			last, found = r, true
		}
	}
	return last, found
}

func (s *state) remindedSince(ticketID int64, since time.Time) bool {
	for _, rem := range s.reminders {
		if rem.TicketID == ticketID && !rem.DateSent.Before(since) {
			return true
		}
	}
	return false
}

func newer(a, b domain.ReplyEntry) bool {
	if !a.DateAdded.Equal(b.DateAdded) {
		return a.DateAdded.After(b.DateAdded)
	}
	return a.ID > b.ID
}

type replyRepo struct{ sh *shared }

func (r *replyRepo) Create(ctx context.Context, reply *domain.ReplyEntry) error {
	st, err := r.sh.lock("replies.create")
	if err != nil {
		return err
	}
	defer r.sh.mu.Unlock()
	if _, ok := st.tickets[reply.TicketID]; !ok {
		return repository.ErrNotFound
	}
	reply.ID = st.id()
	stored := *reply
	stored.Attachments = nil
	st.replies[reply.ID] = stored
	return nil
}

func (r *replyRepo) AddAttachment(ctx context.Context, attachment *domain.Attachment) error {
	st, err := r.sh.lock("replies.attachment")
	if err != nil {
		return err
	}
	defer r.sh.mu.Unlock()
	if _, ok := st.replies[attachment.ReplyID]; !ok {
		return repository.ErrNotFound
	}
	attachment.ID = st.id()
	st.attachments[attachment.ID] = *attachment
	return nil
}

func (r *replyRepo) ListByTicket(ctx context.Context, ticketID int64) ([]domain.ReplyEntry, error) {
	st, err := r.sh.lock("replies.list")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()

	var out []domain.ReplyEntry
	for _, reply := range st.replies {
		if reply.TicketID != ticketID {
			continue
		}
		reply.Attachments = st.attachmentsFor(reply.ID)
		out = append(out, reply)
	}
	sort.Slice(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out, nil
}

func (r *replyRepo) ListAttachmentsByTicket(ctx context.Context, ticketID int64) ([]domain.Attachment, error) {
	st, err := r.sh.lock("replies.attachments")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()

	var out []domain.Attachment
	for _, att := range st.attachments {
		if reply, ok := st.replies[att.ReplyID]; ok && reply.TicketID == ticketID {
			out = append(out, att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *replyRepo) Reparent(ctx context.Context, replyIDs []int64, ticketID int64) error {
	st, err := r.sh.lock("replies.reparent")
	if err != nil {
		return err
	}
	defer r.sh.mu.Unlock()
	for _, id := range replyIDs {
		if reply, ok := st.replies[id]; ok {
			reply.TicketID = ticketID
			st.replies[id] = reply
		}
	}
	return nil
}

func (r *replyRepo) ReparentAll(ctx context.Context, fromTicketID, toTicketID int64, excluded []domain.ReplyType) ([]int64, error) {
	st, err := r.sh.lock("replies.reparent")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()

	var moved []int64
	for id, reply := range st.replies {
		if reply.TicketID != fromTicketID || containsType(excluded, reply.Type) {
			continue
		}
		reply.TicketID = toTicketID
		st.replies[id] = reply
		moved = append(moved, id)
	}
	sort.Slice(moved, func(i, j int) bool { return moved[i] < moved[j] })
	return moved, nil
}

func (s *state) attachmentsFor(replyID int64) []domain.Attachment {
	var out []domain.Attachment
	for _, att := range s.attachments {
		if att.ReplyID == replyID {
			out = append(out, att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type fieldRepo struct{ sh *shared }

func (r *fieldRepo) Upsert(ctx context.Context, value domain.CustomFieldValue) error {
	st, err := r.sh.lock("fields.upsert")
	if err != nil {
		return err
	}
	defer r.sh.mu.Unlock()
	if st.fields[value.TicketID] == nil {
		st.fields[value.TicketID] = map[int64]domain.CustomFieldValue{}
	}
	st.fields[value.TicketID][value.FieldID] = value
	return nil
}

func (r *fieldRepo) ListByTicket(ctx context.Context, ticketID int64) ([]domain.CustomFieldValue, error) {
	st, err := r.sh.lock("fields.list")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	var out []domain.CustomFieldValue
	for _, v := range st.fields[ticketID] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FieldID < out[j].FieldID })
	return out, nil
}

func (r *fieldRepo) Delete(ctx context.Context, ticketID int64, fieldIDs []int64) error {
	st, err := r.sh.lock("fields.delete")
	if err != nil {
		return err
	}
	defer r.sh.mu.Unlock()
	for _, id := range fieldIDs {
		delete(st.fields[ticketID], id)
	}
	return nil
}

type reminderRepo struct{ sh *shared }

func (r *reminderRepo) Create(ctx context.Context, reminder *domain.Reminder) error {
	st, err := r.sh.lock("reminders.create")
	if err != nil {
		return err
	}
	defer r.sh.mu.Unlock()
	reminder.ID = st.id()
	st.reminders[reminder.ID] = *reminder
	return nil
}

func (r *reminderRepo) ListByTicket(ctx context.Context, ticketID int64) ([]domain.Reminder, error) {
	st, err := r.sh.lock("reminders.list")
	if err != nil {
		return nil, err
	}
	defer r.sh.mu.Unlock()
	var out []domain.Reminder
	for _, rem := range st.reminders {
		if rem.TicketID == ticketID {
			out = append(out, rem)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func sortByID(tickets []domain.Ticket) {
	sort.Slice(tickets, func(i, j int) bool { return tickets[i].ID < tickets[j].ID })
}

func containsStatus(set []domain.TicketStatus, s domain.TicketStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func containsPriority(set []domain.TicketPriority, p domain.TicketPriority) bool {
	for _, v := range set {
		if v == p {
			return true
		}
	}
	return false
}

func containsType(set []domain.ReplyType, t domain.ReplyType) bool {
	for _, v := range set {
		if v == t {
			return true
		}
	}
	return false
}
