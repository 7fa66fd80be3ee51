package message

import (
	"strings"

	"github.com/ajayykmr/persona-dispatch/internal/models"
)

// DefaultSeparator places opener, body and signature on separate paragraphs.
const DefaultSeparator = "\n\n"

// Format controls how the rendered pieces of a message are joined.
type Format struct {
	Separator string
}

// DefaultFormat returns the blank-line format.
func DefaultFormat() Format {
	return Format{Separator: DefaultSeparator}
}

// Build renders the opener, the body template and the signature with the same
// fields and joins the non-empty pieces in that order.
func (f Format) Build(persona models.Persona, recipient models.Recipient, template string) string {
	return f.Join(Resolve(persona, recipient), persona.Opener, template, persona.Signature)
}

// Join renders each piece with fields, trims it and joins the pieces that
// are not blank using the format separator.
func (f Format) Join(fields Fields, pieces ...string) string {
	out := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		rendered := strings.TrimSpace(Render(piece, fields))
		if rendered == "" {
			continue
		}
		out = append(out, rendered)
	}
	return strings.Join(out, f.Separator)
}

// Build composes a message using DefaultFormat.
func Build(persona models.Persona, recipient models.Recipient, template string) string {
	return DefaultFormat().Build(persona, recipient, template)
}
