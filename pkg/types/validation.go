package types

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

// FUNCTIONAL DISCOVERY: Validator is safe for concurrent use and caches struct
// metadata, so a single package instance serves every connection
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a register payload after trimming surrounding whitespace
func (p *RegisterPayload) Validate() error {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	if err := validate.Struct(p); err != nil {
		return ErrInvalidRegistration
	}
	return nil
}

// Validate checks a send payload. The body is kept verbatim.
func (p *SendMessagePayload) Validate() error {
	p.SenderID = strings.TrimSpace(p.SenderID)
	p.ReceiverID = strings.TrimSpace(p.ReceiverID)
	if err := validate.Struct(p); err != nil {
		return ErrInvalidMessage
	}
	return nil
}

func (r *JoinRequest) Validate() error {
	r.Username = strings.TrimSpace(r.Username)
	if err := validate.Struct(r); err != nil {
		return ErrInvalidUsername
	}
	return nil
}

// IDs returns the distinct, non-blank message ids of the acknowledgment
// in first-seen order
func (p SeenMessagePayload) IDs() []string {
	trimmed := lo.Map(p.MessageIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})
	return lo.Uniq(lo.Compact(trimmed))
}
