package event

import (
	"fmt"
)

// Op is the kind of mutation a command performs.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "Create"
	case OpModify:
		return "Modify"
	case OpDelete:
		return "Delete"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Access is the kind of read a query performs.
type Access int

const (
	AccessSingle Access = iota
	AccessList
	AccessCount
)

// Registry maps (aggregate tag, operation) pairs onto event type tags, and
// (aggregate tag, access kind) pairs onto data-access tags. Aggregates and
// their child types register during startup; every lookup afterwards hits a
// pre-validated table, so there is no runtime tag synthesis to go wrong.
type Registry struct {
	events     map[regKey]Type
	dataAccess map[accessKey]string
	creates    map[Type]bool
}

type regKey struct {
	tag string
	op  Op
}

type accessKey struct {
	tag    string
	access Access
}

func NewRegistry() *Registry {
	return &Registry{
		events:     make(map[regKey]Type),
		dataAccess: make(map[accessKey]string),
		creates:    make(map[Type]bool),
	}
}

// RegisterAggregate declares an aggregate tag and its child type tags.
// For the aggregate itself Create/Modify/Delete event types and the three
// data-access tags are registered; children get Create/Modify only (children
// are never deleted directly, and reads always target the parent).
func (r *Registry) RegisterAggregate(tag string, childTags ...string) error {
	if tag == "" {
		return fmt.Errorf("event: empty aggregate tag")
	}
	if err := r.register(tag, OpCreate, OpModify, OpDelete); err != nil {
		return err
	}
	for _, child := range childTags {
		if child == "" {
			return fmt.Errorf("event: empty child tag under %q", tag)
		}
		if err := r.register(child, OpCreate, OpModify); err != nil {
			return err
		}
	}

	r.dataAccess[accessKey{tag, AccessSingle}] = "Get" + tag
	r.dataAccess[accessKey{tag, AccessList}] = "Get" + tag + "List"
	r.dataAccess[accessKey{tag, AccessCount}] = "Get" + tag + "Count"
	return nil
}

func (r *Registry) register(tag string, ops ...Op) error {
	for _, op := range ops {
		key := regKey{tag, op}
		if _, exists := r.events[key]; exists {
			return fmt.Errorf("event: %s%sEvent registered twice", op, tag)
		}
		t := Type(fmt.Sprintf("%s%sEvent", op, tag))
		r.events[key] = t
		if op == OpCreate {
			r.creates[t] = true
		}
	}
	return nil
}

// EventType resolves the event type for an aggregate or child tag and
// operation. Unknown pairs mean a wiring bug, not bad user input.
func (r *Registry) EventType(tag string, op Op) (Type, error) {
	t, ok := r.events[regKey{tag, op}]
	if !ok {
		return TypeInvalid, fmt.Errorf("event: no %s event registered for tag %q", op, tag)
	}
	return t, nil
}

// DataAccessTag resolves the audit tag for a read against an aggregate.
func (r *Registry) DataAccessTag(tag string, access Access) (string, error) {
	s, ok := r.dataAccess[accessKey{tag, access}]
	if !ok {
		return "", fmt.Errorf("event: no data access tag registered for %q", tag)
	}
	return s, nil
}

// IsCreate reports whether the type was registered as a creation event.
func (r *Registry) IsCreate(t Type) bool {
	return r.creates[t]
}

// Knows reports whether the tag is registered for the given operation.
// Command processors use this at construction time to fail fast.
func (r *Registry) Knows(tag string, op Op) bool {
	_, ok := r.events[regKey{tag, op}]
	return ok
}
