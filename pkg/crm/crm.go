// Package crm provides read access to the CRM records used to give the
// analysis engine context about a sender: the matching contact, if any, and
// their recent interactions.
package crm

import (
	"context"
	"time"
)

// DefaultInteractionLimit bounds how many recent interactions a lookup
// returns when the caller does not say otherwise.
const DefaultInteractionLimit = 5

// Contact is a CRM contact record.
type Contact struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Company   string    `json:"company,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Interaction is a prior touchpoint with a contact, most commonly an
// appointment or a logged call.
type Interaction struct {
	ID         string    `json:"id"`
	ContactID  string    `json:"contact_id"`
	Kind       string    `json:"kind"`
	Subject    string    `json:"subject"`
	Notes      string    `json:"notes,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Context is the CRM state surrounding a sender, handed to the analysis
// engine as prompt context. A zero Context means the sender is unknown.
type Context struct {
	Contact            *Contact      `json:"contact,omitempty"`
	RecentInteractions []Interaction `json:"recent_interactions,omitempty"`
}

// Known reports whether the sender matched an existing contact.
func (c Context) Known() bool {
	return c.Contact != nil
}

// Lookup retrieves CRM context for a sender. Implementations return empty
// results rather than errors for unknown senders; errors indicate the store
// itself failed.
type Lookup interface {
	// ContactByEmail finds the contact with the given email address, or nil
	// when no contact matches.
	ContactByEmail(ctx context.Context, email string) (*Contact, error)

	// RecentInteractions returns up to limit interactions for the contact,
	// most recent first. A non-positive limit uses DefaultInteractionLimit.
	RecentInteractions(ctx context.Context, contactID string, limit int) ([]Interaction, error)
}

// ContextFor assembles the full Context for a sender using the given Lookup.
// An unknown sender yields an empty Context and no error.
func ContextFor(ctx context.Context, lookup Lookup, email string) (Context, error) {
	contact, err := lookup.ContactByEmail(ctx, email)
	if err != nil {
		return Context{}, err
	}
	if contact == nil {
		return Context{}, nil
	}

	interactions, err := lookup.RecentInteractions(ctx, contact.ID, DefaultInteractionLimit)
	if err != nil {
		return Context{}, err
	}
	return Context{Contact: contact, RecentInteractions: interactions}, nil
}

// NopLookup is a Lookup that knows no contacts. Used when the pipeline runs
// without a CRM database, such as one-off CLI analysis.
type NopLookup struct{}

func (NopLookup) ContactByEmail(context.Context, string) (*Contact, error) {
	return nil, nil
}

func (NopLookup) RecentInteractions(context.Context, string, int) ([]Interaction, error) {
	return nil, nil
}
