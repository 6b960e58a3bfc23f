package domain

import "time"

// AuthorKind identifies who wrote a thread entry.
type AuthorKind string

const (
	AuthorStaff   AuthorKind = "staff"
	AuthorContact AuthorKind = "contact"
	AuthorClient  AuthorKind = "client"
	AuthorSystem  AuthorKind = "system"
)

// Author is a tagged union: Staff and Contact carry an ID, Client means the ticket's
// primary client or its inbound email, System marks engine-generated entries.
type Author struct {
	Kind AuthorKind `json:"kind"`
	ID   int64      `json:"id,omitempty"`
}

func StaffAuthor(id int64) Author   { return Author{Kind: AuthorStaff, ID: id} }
func ContactAuthor(id int64) Author { return Author{Kind: AuthorContact, ID: id} }
func ClientAuthor() Author          { return Author{Kind: AuthorClient} }
func SystemAuthor() Author          { return Author{Kind: AuthorSystem} }

// AuthorFromStaff returns a staff author, or System when id is nil.
func AuthorFromStaff(id *int64) Author {
	if id == nil {
		return SystemAuthor()
	}
	return StaffAuthor(*id)
}

// StaffSide reports whether the entry came from the support side.
func (a Author) StaffSide() bool {
	return a.Kind == AuthorStaff || a.Kind == AuthorSystem
}

// StaffID returns the staff id for staff authors.
func (a Author) StaffID() *int64 {
	if a.Kind != AuthorStaff {
		return nil
	}
	id := a.ID
	return &id
}

// ContactID returns the contact id for contact authors.
func (a Author) ContactID() *int64 {
	if a.Kind != AuthorContact {
		return nil
	}
	id := a.ID
	return &id
}

// Valid reports whether the author is well formed.
func (a Author) Valid() bool {
	switch a.Kind {
	case AuthorStaff, AuthorContact:
		return a.ID > 0
	case AuthorClient, AuthorSystem:
		return a.ID == 0
	}
	return false
}

// ReplyType differentiates thread entries.
type ReplyType string

const (
	ReplyTypeReply ReplyType = "reply"
	ReplyTypeNote  ReplyType = "note"
	ReplyTypeLog   ReplyType = "log"
)

// Valid reports whether t is a known reply type.
func (t ReplyType) Valid() bool {
	return t == ReplyTypeReply || t == ReplyTypeNote || t == ReplyTypeLog
}

// ReplyEntry is one unit of a ticket thread.
type ReplyEntry struct {
	ID          int64
	TicketID    int64
	Author      Author
	Type        ReplyType
	Details     string
	DateAdded   time.Time
	Attachments []Attachment
}

// Attachment is a stored file that belongs to exactly one reply.
type Attachment struct {
	ID       int64
	ReplyID  int64
	Name     string
	FilePath string
}
