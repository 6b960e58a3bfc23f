package service

import (
	"context"
	"sort"

	"github.com/spec-kit/ticket-engine/internal/domain"
	"github.com/spec-kit/ticket-engine/internal/repository"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util/errorutil"
)

// FieldValue is a decrypted custom field value paired with its schema.
type FieldValue struct {
	Field domain.CustomFieldSchema
	Value string
}

// FieldBinder attaches department-defined custom fields to tickets.
type FieldBinder struct {
	vault Encrypter
}

// NewFieldBinder returns a binder sealing encrypted fields with vault.
func NewFieldBinder(vault Encrypter) *FieldBinder {
	return &FieldBinder{vault: vault}
}

// BindAll validates and stores values against the department schema. When creating,
// every required field must be present.
func (b *FieldBinder) BindAll(ctx context.Context, tx repository.Store, dept *domain.Department, ticketID int64, values map[int64]string, creating bool) error {
	if err := b.validate(dept, values, creating); err != nil {
		return err
	}
	ids := make([]int64, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := b.Bind(ctx, tx, dept, ticketID, id, values[id]); err != nil {
			return err
		}
	}
	return nil
}

func (b *FieldBinder) validate(dept *domain.Department, values map[int64]string, creating bool) error {
	for id, value := range values {
		field, ok := dept.Field(id)
		if !ok {
			return apperrors.NewValidationError(apperrors.ReasonCustomFieldUnknown, "custom field is not defined for this department",
				map[string]any{"field_id": id})
		}
		if !field.AllowsValue(value) {
			return apperrors.NewValidationError(apperrors.ReasonCustomFieldOption, "value is not an allowed option",
				map[string]any{"field_id": id, "label": field.Label})
		}
		if field.Required && value == "" && field.Type != domain.FieldTypePassword {
			return requiredFieldError(field)
		}
	}
	if !creating {
		return nil
	}
	for _, field := range dept.Fields {
		if field.Required && values[field.ID] == "" {
			return requiredFieldError(field)
		}
	}
	return nil
}

func requiredFieldError(field domain.CustomFieldSchema) error {
	return apperrors.NewValidationError(apperrors.ReasonCustomFieldRequired, "custom field is required",
		map[string]any{"field_id": field.ID, "label": field.Label})
}

// Bind stores one value. An empty password leaves the stored secret untouched.
func (b *FieldBinder) Bind(ctx context.Context, tx repository.Store, dept *domain.Department, ticketID, fieldID int64, value string) error {
	field, ok := dept.Field(fieldID)
	if !ok {
		return apperrors.NewValidationError(apperrors.ReasonCustomFieldUnknown, "custom field is not defined for this department",
			map[string]any{"field_id": fieldID})
	}
	if field.Type == domain.FieldTypePassword && value == "" {
		return nil
	}

	stored := domain.CustomFieldValue{TicketID: ticketID, FieldID: fieldID, Value: value, Encrypted: field.Encrypted}
	if field.Encrypted && value != "" {
		sealed, err := b.vault.Encrypt(value)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		stored.Value = sealed
	}
	return tx.Fields().Upsert(ctx, stored)
}

// Prune removes values whose field is not part of the department schema.
func (b *FieldBinder) Prune(ctx context.Context, tx repository.Store, dept *domain.Department, ticketID int64) error {
	return b.deleteWhere(ctx, tx, ticketID, func(v domain.CustomFieldValue) bool {
		_, ok := dept.Field(v.FieldID)
		return !ok
	})
}

// PruneAutoDelete removes values whose field is flagged auto_delete.
func (b *FieldBinder) PruneAutoDelete(ctx context.Context, tx repository.Store, dept *domain.Department, ticketID int64) error {
	return b.deleteWhere(ctx, tx, ticketID, func(v domain.CustomFieldValue) bool {
		field, ok := dept.Field(v.FieldID)
		return ok && field.AutoDelete
	})
}

func (b *FieldBinder) deleteWhere(ctx context.Context, tx repository.Store, ticketID int64, match func(domain.CustomFieldValue) bool) error {
	values, err := tx.Fields().ListByTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	var ids []int64
	for _, v := range values {
		if match(v) {
			ids = append(ids, v.FieldID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return tx.Fields().Delete(ctx, ticketID, ids)
}

// Values returns the ticket's fields known to dept, decrypted.
func (b *FieldBinder) Values(ctx context.Context, store repository.Store, dept *domain.Department, ticketID int64) ([]FieldValue, error) {
	values, err := store.Fields().ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	out := make([]FieldValue, 0, len(values))
	for _, v := range values {
		field, ok := dept.Field(v.FieldID)
		if !ok {
			continue
		}
		plain := v.Value
		if v.Encrypted && v.Value != "" {
			if plain, err = b.vault.Decrypt(v.Value); err != nil {
				return nil, apperrors.NewInternalError(err)
			}
		}
		out = append(out, FieldValue{Field: field, Value: plain})
	}
	return out, nil
}
