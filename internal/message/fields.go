// Package message turns a persona, a recipient and a template into the text
// that is sent to that recipient.
package message

import (
	"strings"

	"github.com/ajayykmr/persona-dispatch/internal/models"
)

// Placeholder names understood by Render.
const (
	FieldFirstName       = "firstName"
	FieldFullName        = "fullName"
	FieldCompany         = "company"
	FieldNotes           = "notes"
	FieldLastInteraction = "lastInteraction"
	FieldAgentName       = "agentName"
	FieldAgentRole       = "agentRole"
	FieldAgentVibe       = "agentVibe"
)

// Fields maps placeholder names to their substitution values.
type Fields map[string]string

// Resolve derives the placeholder values for one persona/recipient pair.
// Absent optional attributes resolve to the empty string.
func Resolve(persona models.Persona, recipient models.Recipient) Fields {
	return Fields{
		FieldFirstName:       firstName(recipient.Name),
		FieldFullName:        recipient.Name,
		FieldCompany:         recipient.Company,
		FieldNotes:           recipient.Notes,
		FieldLastInteraction: recipient.LastInteraction,
		FieldAgentName:       persona.Name,
		FieldAgentRole:       persona.Role,
		FieldAgentVibe:       persona.Vibe,
	}
}

func firstName(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return name
	}
	return parts[0]
}
