package model

import "time"

// PartyType classifies a party's role in the reinsurance market.
type PartyType string

const (
	PartyTypeCedant    PartyType = "cedant"
	PartyTypeReinsurer PartyType = "reinsurer"
	PartyTypeBroker    PartyType = "broker"
	PartyTypeOther     PartyType = "other"
)

// Valid reports whether t is one of the known party types.
func (t PartyType) Valid() bool {
	switch t {
	case PartyTypeCedant, PartyTypeReinsurer, PartyTypeBroker, PartyTypeOther:
		return true
	}
	return false
}

// Party represents an organization or individual involved in contracts.
type Party struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	PartyType PartyType `json:"party_type"`

	Email        *string `json:"email,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	AddressLine1 *string `json:"address_line1,omitempty"`
	AddressLine2 *string `json:"address_line2,omitempty"`
	City         *string `json:"city,omitempty"`
	State        *string `json:"state,omitempty"`
	PostalCode   *string `json:"postal_code,omitempty"`
	Country      *string `json:"country,omitempty"`

	RegistrationNumber *string `json:"registration_number,omitempty"`
	LicenseNumber      *string `json:"license_number,omitempty"`

	Notes    *string `json:"notes,omitempty"`
	IsActive bool    `json:"is_active"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// PartyPatch is a partial update; nil fields are left unchanged.
type PartyPatch struct {
	Name               *string    `json:"name,omitempty"`
	PartyType          *PartyType `json:"party_type,omitempty"`
	Email              *string    `json:"email,omitempty"`
	Phone              *string    `json:"phone,omitempty"`
	AddressLine1       *string    `json:"address_line1,omitempty"`
	AddressLine2       *string    `json:"address_line2,omitempty"`
	City               *string    `json:"city,omitempty"`
	State              *string    `json:"state,omitempty"`
	PostalCode         *string    `json:"postal_code,omitempty"`
	Country            *string    `json:"country,omitempty"`
	RegistrationNumber *string    `json:"registration_number,omitempty"`
	LicenseNumber      *string    `json:"license_number,omitempty"`
	Notes              *string    `json:"notes,omitempty"`
	IsActive           *bool      `json:"is_active,omitempty"`
}
