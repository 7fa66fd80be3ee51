package models

// Persona is the identity outgoing messages are written from. It is the
// canonical form: optional attributes are empty strings, never absent.
type Persona struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Vibe      string `json:"vibe"`
	Opener    string `json:"opener"`
	Signature string `json:"signature"`
}

// Recipient is one addressable target of a batch.
type Recipient struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Company         string `json:"company,omitempty"`
	Notes           string `json:"notes,omitempty"`
	LastInteraction string `json:"lastInteraction,omitempty"`
}

// Batch groups one dispatch invocation. The ID exists purely for
// correlation in logs and events; nothing about a batch is stored.
type Batch struct {
	ID         string
	Persona    Persona
	Template   string
	Recipients []Recipient
}
