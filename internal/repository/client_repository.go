package repository

import (
	"context"

	"github.com/spec-kit/ticket-engine/internal/domain"
)

type clientRepository struct {
	q Querier
}

func (r *clientRepository) GetClient(ctx context.Context, id int64) (*domain.Client, error) {
	var client domain.Client
	err := r.q.QueryRow(ctx, `SELECT id, company_id, name, email, locale FROM clients WHERE id=$1`, id).
		Scan(&client.ID, &client.CompanyID, &client.Name, &client.Email, &client.Locale)
	if err != nil {
		return nil, notFound(err)
	}
	return &client, nil
}

func (r *clientRepository) GetContact(ctx context.Context, id int64) (*domain.Contact, error) {
	var contact domain.Contact
	err := r.q.QueryRow(ctx, `SELECT id, client_id, name, email FROM contacts WHERE id=$1`, id).
		Scan(&contact.ID, &contact.ClientID, &contact.Name, &contact.Email)
	if err != nil {
		return nil, notFound(err)
	}
	return &contact, nil
}

func (r *clientRepository) GetService(ctx context.Context, id int64) (*domain.Service, error) {
	var service domain.Service
	err := r.q.QueryRow(ctx, `SELECT id, client_id FROM services WHERE id=$1`, id).
		Scan(&service.ID, &service.ClientID)
	if err != nil {
		return nil, notFound(err)
	}
	return &service, nil
}
