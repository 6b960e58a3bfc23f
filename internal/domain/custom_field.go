package domain

// CustomFieldType enumerates department field schema types.
type CustomFieldType string

const (
	FieldTypeText     CustomFieldType = "text"
	FieldTypeTextarea CustomFieldType = "textarea"
	FieldTypePassword CustomFieldType = "password"
	FieldTypeSelect   CustomFieldType = "select"
	FieldTypeCheckbox CustomFieldType = "checkbox"
)

// CustomFieldSchema is a department-defined field.
type CustomFieldSchema struct {
	ID           int64
	DepartmentID int64
	Label        string
	Type         CustomFieldType
	Required     bool
	Encrypted    bool
	AutoDelete   bool
	Options      []string
}

// AllowsValue reports whether value is acceptable for select fields.
func (f CustomFieldSchema) AllowsValue(value string) bool {
	if f.Type != FieldTypeSelect || value == "" || len(f.Options) == 0 {
		return true
	}
	for _, opt := range f.Options {
		if opt == value {
			return true
		}
	}
	return false
}

// CustomFieldValue binds a value to a ticket. Value holds ciphertext when Encrypted.
type CustomFieldValue struct {
	TicketID  int64
	FieldID   int64
	Value     string
	Encrypted bool
}
