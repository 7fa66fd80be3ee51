// Package batch decodes and validates inbound send requests and normalizes
// them into the canonical records the dispatcher works with.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ajayykmr/persona-dispatch/internal/models"
)

// ErrInvalidRequest marks any request that fails decoding or validation.
var ErrInvalidRequest = errors.New("Invalid request payload.")

// Request is the wire shape accepted by the send and preview endpoints and by
// the Kafka intake topic.
type Request struct {
	BatchID  *string          `json:"batchId,omitempty"`
	Profile  *ProfileRequest  `json:"profile" validate:"required"`
	Template string           `json:"template" validate:"required"`
	Contacts []ContactRequest `json:"contacts" validate:"required,min=1,dive"`
}

// ProfileRequest is the persona as sent by clients; optional fields may be absent.
type ProfileRequest struct {
	Name      string  `json:"name" validate:"required"`
	Role      *string `json:"role,omitempty"`
	Vibe      *string `json:"vibe,omitempty"`
	Opener    *string `json:"opener,omitempty"`
	Signature *string `json:"signature,omitempty"`
}

// ContactRequest is one recipient as sent by clients.
type ContactRequest struct {
	ID              string  `json:"id" validate:"required"`
	Name            string  `json:"name" validate:"required"`
	Phone           string  `json:"phone" validate:"required"`
	Company         *string `json:"company,omitempty"`
	Notes           *string `json:"notes,omitempty"`
	LastInteraction *string `json:"lastInteraction,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// InvalidRequestError carries the failing fields alongside ErrInvalidRequest.
type InvalidRequestError struct {
	Fields map[string][]string
	Err    error
}

func (e *InvalidRequestError) Error() string {
	return ErrInvalidRequest.Error()
}

func (e *InvalidRequestError) Unwrap() []error {
	return []error{ErrInvalidRequest, e.Err}
}

// Decode reads one JSON request and validates it.
func Decode(r io.Reader) (*Request, error) {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, &InvalidRequestError{Err: fmt.Errorf("batch: decode request: %w", err)}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Parse is Decode for an in-memory payload.
func Parse(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &InvalidRequestError{Err: fmt.Errorf("batch: decode request: %w", err)}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// Validate checks the structural rules: a named profile, a non-empty
// template and at least one contact with id, name and phone.
func (r *Request) Validate() error {
	if r == nil {
		return &InvalidRequestError{Err: errors.New("batch: request is nil")}
	}
	if err := validate.Struct(r); err != nil {
		return &InvalidRequestError{Fields: fieldErrors(err), Err: fmt.Errorf("batch: validate request: %w", err)}
	}
	return nil
}

func fieldErrors(err error) map[string][]string {
	fields := map[string][]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			field := strings.ToLower(fe.Namespace())
			fields[field] = append(fields[field], fe.Tag())
		}
	}
	return fields
}

// Batch normalizes the request into a models.Batch. A missing or blank batch
// id is replaced with a fresh UUID.
func (r *Request) Batch() models.Batch {
	id := ""
	if r.BatchID != nil {
		id = strings.TrimSpace(*r.BatchID)
	}
	if id == "" {
		id = uuid.NewString()
	}

	recipients := make([]models.Recipient, 0, len(r.Contacts))
	for _, c := range r.Contacts {
		recipients = append(recipients, c.ToRecipient())
	}

	var persona models.Persona
	if r.Profile != nil {
		persona = r.Profile.ToPersona()
	}

	return models.Batch{
		ID:         id,
		Persona:    persona,
		Template:   r.Template,
		Recipients: recipients,
	}
}

// ToPersona fills absent optionals with empty strings.
func (p ProfileRequest) ToPersona() models.Persona {
	return models.Persona{
		Name:      p.Name,
		Role:      deref(p.Role),
		Vibe:      deref(p.Vibe),
		Opener:    deref(p.Opener),
		Signature: deref(p.Signature),
	}
}

// ToRecipient fills absent optionals with empty strings.
func (c ContactRequest) ToRecipient() models.Recipient {
	return models.Recipient{
		ID:              c.ID,
		Name:            c.Name,
		Phone:           c.Phone,
		Company:         deref(c.Company),
		Notes:           deref(c.Notes),
		LastInteraction: deref(c.LastInteraction),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
