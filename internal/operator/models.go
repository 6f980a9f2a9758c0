// Package operator implements the Operator aggregate: a transport operator
// running drivers and vehicles under an agency's oversight.
package operator

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleetledger/internal/cqrs/aggregate"
	"fleetledger/internal/cqrs/event"
)

// Tag is the aggregate type tag operators register and route under.
const Tag = "Operator"

// Child type tags.
const (
	DriverTag  = "Driver"
	VehicleTag = "Vehicle"
)

// Operator is the materialized snapshot folded from an operator event stream.
type Operator struct {
	ID       uuid.UUID        `json:"id"`
	Name     string           `json:"name"`
	Licence  string           `json:"licenceNumber"`
	Region   string           `json:"region"`
	Status   aggregate.Status `json:"status"`
	Drivers  []Driver         `json:"drivers"`
	Vehicles []Vehicle        `json:"vehicles"`
	Version  time.Time        `json:"eventVersion"`
}

func (o *Operator) StreamID() uuid.UUID          { return o.ID }
func (o *Operator) SetStreamID(id uuid.UUID)     { o.ID = id }
func (o *Operator) EventVersion() time.Time      { return o.Version }
func (o *Operator) SetEventVersion(ts time.Time) { o.Version = ts }

// Driver is one entry in the operator's driver collection.
type Driver struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	LicenceClass string           `json:"licenceClass"`
	Status       aggregate.Status `json:"status"`
}

// Vehicle is one entry in the operator's vehicle collection.
type Vehicle struct {
	ID           int64            `json:"id"`
	Registration string           `json:"registration"`
	Capacity     int              `json:"capacity"`
	Status       aggregate.Status `json:"status"`
}

func driverRefs(o *Operator) []aggregate.ChildRef {
	out := make([]aggregate.ChildRef, len(o.Drivers))
	for i, d := range o.Drivers {
		out[i] = aggregate.ChildRef{ID: d.ID, Data: d}
	}
	return out
}

func vehicleRefs(o *Operator) []aggregate.ChildRef {
	out := make([]aggregate.ChildRef, len(o.Vehicles))
	for i, v := range o.Vehicles {
		out[i] = aggregate.ChildRef{ID: v.ID, Data: v}
	}
	return out
}

type operatorPatch struct {
	Name    *string           `json:"name"`
	Licence *string           `json:"licenceNumber"`
	Region  *string           `json:"region"`
	Status  *aggregate.Status `json:"status"`
}

type driverPatch struct {
	Name         *string           `json:"name"`
	LicenceClass *string           `json:"licenceClass"`
	Status       *aggregate.Status `json:"status"`
}

type vehiclePatch struct {
	Registration *string           `json:"registration"`
	Capacity     *int              `json:"capacity"`
	Status       *aggregate.Status `json:"status"`
}

// Applier folds operator events into snapshots.
type Applier struct{}

func (Applier) Tag() string            { return Tag }
func (Applier) NewSnapshot() *Operator { return &Operator{} }

func (Applier) Apply(o *Operator, ev event.DomainEvent) error {
	switch ev.EventType {
	case "CreateOperatorEvent":
		var patch operatorPatch
		if err := decode(ev, &patch); err != nil {
			return err
		}
		o.Status = aggregate.StatusNew
		applyOperatorPatch(o, patch)
		return nil

	case "ModifyOperatorEvent":
		var patch operatorPatch
		if err := decode(ev, &patch); err != nil {
			return err
		}
		applyOperatorPatch(o, patch)
		return nil

	case "CreateDriverEvent":
		var patch driverPatch
		if err := decode(ev, &patch); err != nil {
			return err
		}
		driver := Driver{ID: nextID(driverRefs(o)), Status: aggregate.StatusNew}
		applyDriverPatch(&driver, patch)
		o.Drivers = append(o.Drivers, driver)
		return nil

	case "ModifyDriverEvent":
		var patch driverPatch
		if err := decode(ev, &patch); err != nil {
			return err
		}
		for i := range o.Drivers {
			if o.Drivers[i].ID == ev.ChildEntityID {
				applyDriverPatch(&o.Drivers[i], patch)
				return nil
			}
		}
		return fmt.Errorf("operator: driver %d not in stream %s", ev.ChildEntityID, ev.EventStreamID)

	case "CreateVehicleEvent":
		var patch vehiclePatch
		if err := decode(ev, &patch); err != nil {
			return err
		}
		vehicle := Vehicle{ID: nextID(vehicleRefs(o)), Status: aggregate.StatusNew}
		applyVehiclePatch(&vehicle, patch)
		o.Vehicles = append(o.Vehicles, vehicle)
		return nil

	case "ModifyVehicleEvent":
		var patch vehiclePatch
		if err := decode(ev, &patch); err != nil {
			return err
		}
		for i := range o.Vehicles {
			if o.Vehicles[i].ID == ev.ChildEntityID {
				applyVehiclePatch(&o.Vehicles[i], patch)
				return nil
			}
		}
		return fmt.Errorf("operator: vehicle %d not in stream %s", ev.ChildEntityID, ev.EventStreamID)

	default:
		return fmt.Errorf("operator: unexpected event type %q", ev.EventType)
	}
}

func decode(ev event.DomainEvent, into any) error {
	if err := json.Unmarshal(ev.EventData, into); err != nil {
		return fmt.Errorf("operator: decode %s: %w", ev.EventType, err)
	}
	return nil
}

func applyOperatorPatch(o *Operator, patch operatorPatch) {
	if patch.Name != nil {
		o.Name = *patch.Name
	}
	if patch.Licence != nil {
		o.Licence = *patch.Licence
	}
	if patch.Region != nil {
		o.Region = *patch.Region
	}
	if patch.Status != nil {
		o.Status = *patch.Status
	}
}

func applyDriverPatch(d *Driver, patch driverPatch) {
	if patch.Name != nil {
		d.Name = *patch.Name
	}
	if patch.LicenceClass != nil {
		d.LicenceClass = *patch.LicenceClass
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
}

func applyVehiclePatch(v *Vehicle, patch vehiclePatch) {
	if patch.Registration != nil {
		v.Registration = *patch.Registration
	}
	if patch.Capacity != nil {
		v.Capacity = *patch.Capacity
	}
	if patch.Status != nil {
		v.Status = *patch.Status
	}
}

// nextID keeps child ids deterministic under replay: one past the highest id
// in the collection. Drivers and vehicles number independently.
func nextID(refs []aggregate.ChildRef) int64 {
	var max int64
	for _, r := range refs {
		if r.ID > max {
			max = r.ID
		}
	}
	return max + 1
}
