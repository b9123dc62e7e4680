package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// IdentifierKind names the owning domain of an identifier.
type IdentifierKind string

const (
	KindOrder       IdentifierKind = "order"
	KindCustomer    IdentifierKind = "customer"
	KindCatalog     IdentifierKind = "catalog"
	KindWatch       IdentifierKind = "watch"
	KindServicePlan IdentifierKind = "service-plan"
)

var ErrEmptyIdentifier = errors.New("identifier must not be empty")

// NewIdentifier produces a collision-resistant opaque token. Uniqueness is
// probabilistic-by-construction; the store's unique index is the backstop.
func NewIdentifier(IdentifierKind) string {
	return uuid.NewString()
}

// ValidateIdentifier accepts a caller-supplied pre-assigned id as-is, only
// rejecting blank input.
func ValidateIdentifier(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyIdentifier
	}
	return raw, nil
}

// ResolveIdentifier returns the supplied id when present, otherwise a fresh one.
func ResolveIdentifier(kind IdentifierKind, raw string) (string, error) {
	if raw == "" {
		return NewIdentifier(kind), nil
	}
	return ValidateIdentifier(raw)
}
