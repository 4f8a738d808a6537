package handlers

import (
	"fmt"
	"strings"

	"github.com/skyvault/skyvault/pkg/models"
)

// ContactsHandler covers shared contact cards. A body carries a contacts
// element with one <c/> entry per card: t (type), s (mri/id), f (full
// name), p (phone), e (email).
type ContactsHandler struct{}

func (h *ContactsHandler) Name() string { return "contacts" }

func (h *ContactsHandler) CanHandle(messageType string) bool {
	return messageType == "RichText/Contacts"
}

func (h *ContactsHandler) Extract(msg *models.RawMessage) (map[string]any, error) {
	entries := selfClosing(msg.Content, "c")
	if len(entries) == 0 {
		return nil, fmt.Errorf("no contact entries in body")
	}

	contacts := make([]map[string]any, 0, len(entries))
	for _, blob := range entries {
		attrs := attrMap(blob)
		contact := map[string]any{}
		if name := attrs["f"]; name != "" {
			contact["name"] = name
		}
		if mri := attrs["s"]; mri != "" {
			contact["mri"] = mri
			if _, ok := contact["name"]; !ok {
				contact["name"] = models.StripMRIPrefix(mri)
			}
			// Phone-type contacts carry the number as the identity.
			if attrs["t"] == "p" || strings.HasPrefix(mri, "4:") {
				contact["phone"] = models.StripMRIPrefix(mri)
			}
		}
		if phone := attrs["p"]; phone != "" {
			contact["phone"] = phone
		}
		if email := attrs["e"]; email != "" {
			contact["email"] = email
		}
		if len(contact) > 0 {
			contacts = append(contacts, contact)
		}
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("contact entries carried no fields")
	}
	return map[string]any{"contacts": contacts}, nil
}
