package domain

// Client is a registered customer account.
type Client struct {
	ID        int64
	CompanyID int64
	Name      string
	Email     string
	Locale    string
}

// Contact is a sub-contact of a client.
type Contact struct {
	ID       int64
	ClientID int64
	Name     string
	Email    string
}

// Service is a client-owned package instance a ticket may reference.
type Service struct {
	ID       int64
	ClientID int64
}
