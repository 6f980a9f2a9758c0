// Package agency implements the Agency aggregate: the licensing body that
// operates a fleet region. Agencies carry a contact child collection.
package agency

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleetledger/internal/cqrs/aggregate"
	"fleetledger/internal/cqrs/event"
)

// Tag is the aggregate type tag agencies register and route under.
const Tag = "Agency"

// ContactTag is the child type tag for the contact collection.
const ContactTag = "AgencyContact"

// Agency is the materialized snapshot folded from an agency event stream.
type Agency struct {
	ID       uuid.UUID        `json:"id"`
	Name     string           `json:"name"`
	Region   string           `json:"region"`
	Status   aggregate.Status `json:"status"`
	Contacts []Contact        `json:"contacts"`
	Version  time.Time        `json:"eventVersion"`
}

func (a *Agency) StreamID() uuid.UUID          { return a.ID }
func (a *Agency) SetStreamID(id uuid.UUID)     { a.ID = id }
func (a *Agency) EventVersion() time.Time      { return a.Version }
func (a *Agency) SetEventVersion(ts time.Time) { a.Version = ts }

// Contact is one entry in the agency's contact collection. IDs are assigned
// by the fold, starting at 1 per aggregate.
type Contact struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// contactRefs exposes the contact collection in the uniform child shape.
func contactRefs(a *Agency) []aggregate.ChildRef {
	out := make([]aggregate.ChildRef, len(a.Contacts))
	for i, c := range a.Contacts {
		out[i] = aggregate.ChildRef{ID: c.ID, Data: c}
	}
	return out
}

// agencyPatch is the partial payload of create and modify events. Absent
// fields leave the snapshot untouched.
type agencyPatch struct {
	Name   *string           `json:"name"`
	Region *string           `json:"region"`
	Status *aggregate.Status `json:"status"`
}

// contactPatch is the partial payload of contact events.
type contactPatch struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

// Applier folds agency events into snapshots.
type Applier struct{}

func (Applier) Tag() string          { return Tag }
func (Applier) NewSnapshot() *Agency { return &Agency{} }

func (Applier) Apply(a *Agency, ev event.DomainEvent) error {
	switch ev.EventType {
	case "CreateAgencyEvent":
		var patch agencyPatch
		if err := json.Unmarshal(ev.EventData, &patch); err != nil {
			return fmt.Errorf("agency: decode %s: %w", ev.EventType, err)
		}
		a.Status = aggregate.StatusNew
		applyAgencyPatch(a, patch)
		return nil

	case "ModifyAgencyEvent":
		var patch agencyPatch
		if err := json.Unmarshal(ev.EventData, &patch); err != nil {
			return fmt.Errorf("agency: decode %s: %w", ev.EventType, err)
		}
		applyAgencyPatch(a, patch)
		return nil

	case "CreateAgencyContactEvent":
		var patch contactPatch
		if err := json.Unmarshal(ev.EventData, &patch); err != nil {
			return fmt.Errorf("agency: decode %s: %w", ev.EventType, err)
		}
		contact := Contact{ID: nextContactID(a)}
		applyContactPatch(&contact, patch)
		a.Contacts = append(a.Contacts, contact)
		return nil

	case "ModifyAgencyContactEvent":
		var patch contactPatch
		if err := json.Unmarshal(ev.EventData, &patch); err != nil {
			return fmt.Errorf("agency: decode %s: %w", ev.EventType, err)
		}
		for i := range a.Contacts {
			if a.Contacts[i].ID == ev.ChildEntityID {
				applyContactPatch(&a.Contacts[i], patch)
				return nil
			}
		}
		return fmt.Errorf("agency: contact %d not in stream %s", ev.ChildEntityID, ev.EventStreamID)

	default:
		return fmt.Errorf("agency: unexpected event type %q", ev.EventType)
	}
}

func applyAgencyPatch(a *Agency, patch agencyPatch) {
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Region != nil {
		a.Region = *patch.Region
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
}

func applyContactPatch(c *Contact, patch contactPatch) {
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.Email != nil {
		c.Email = *patch.Email
	}
	if patch.Phone != nil {
		c.Phone = *patch.Phone
	}
}

// nextContactID keeps child ids deterministic under replay: always one past
// the highest id ever assigned in this snapshot.
func nextContactID(a *Agency) int64 {
	var max int64
	for _, c := range a.Contacts {
		if c.ID > max {
			max = c.ID
		}
	}
	return max + 1
}
