package pipeline

import (
	"strings"

	"github.com/badoux/checkmail"

	"leadflow/meta"
)

// PendingPhone is the placeholder the platform fills in while a submission is
// still incomplete. It must never be used as a dedup key.
const PendingPhone = "PENDING"

// Contact is the canonical shape produced from a raw platform field list
type Contact struct {
	Name   string
	Phone  string
	Email  string
	Custom map[string]string
}

// HasPhone reports whether the contact carries a usable phone number
func (c Contact) HasPhone() bool {
	return c.Phone != "" && c.Phone != PendingPhone
}

// Normalize converts the platform's semi-structured field list into a
// Contact. Field names are classified by substring match after lower-casing:
// "name" -> full name, "phone" -> phone, "email" -> email. Everything else
// (and any repeat of an already-filled well-known field) is preserved
// verbatim in the custom bag under its original name. Platform forms are
// single-valued per field in practice, so only the first value is used.
//
// A missing phone is not an error here; callers decide whether it is fatal.
func Normalize(fields []meta.FieldData) Contact {
	contact := Contact{Custom: make(map[string]string)}

	for _, field := range fields {
		if len(field.Values) == 0 {
			continue
		}
		value := strings.TrimSpace(field.Values[0])
		if value == "" {
			continue
		}

		switch key := strings.ToLower(field.Name); {
		case strings.Contains(key, "name") && contact.Name == "":
			contact.Name = value
		case strings.Contains(key, "phone") && contact.Phone == "":
			contact.Phone = value
		case strings.Contains(key, "email") && contact.Email == "":
			// A malformed email must not become a dedup key
			if checkmail.ValidateFormat(value) == nil {
				contact.Email = strings.ToLower(value)
			} else {
				contact.Custom[field.Name] = value
			}
		default:
			contact.Custom[field.Name] = value
		}
	}

	return contact
}
