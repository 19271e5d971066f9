package watershed

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/soypat/geometry/ms2"
)

// Control represents an editable parameter of a segmentation stage.
// Changing a control through ChangeValue takes effect on the next run of the stage.
type Control interface {
	// Display/human readable name and description.
	Describe() (name, description string)
	// ActualValue returns the current value of the control.
	ActualValue() any
	// ChangeValue attempts to update the ActualValue to newValue.
	ChangeValue(newValue any) error
}

type ControlOrdered[T cmp.Ordered] struct {
	Name        string
	Description string
	Value       T
	Min         T
	Max         T
	Step        T
	OnChange    func(T) error
}

func (co *ControlOrdered[T]) Describe() (name, description string) {
	return co.Name, co.Description
}
func (co *ControlOrdered[T]) ActualValue() any { return co.Value }
func (co *ControlOrdered[T]) ChangeValue(newValue any) error {
	v, ok := newValue.(T)
	if !ok {
		return fmt.Errorf("new value %T not of type %T", newValue, co.Value)
	}
	if v < co.Min || v > co.Max {
		return fmt.Errorf("new value %v exceeds limits %v..%v: %w", v, co.Min, co.Max, ErrInvalidConfig)
	}
	var err error
	if co.OnChange != nil {
		err = co.OnChange(v)
	}
	if err == nil {
		co.Value = v
	}
	return err
}

type integer interface {
	~int | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~int8 | ~int16 | ~int32 | ~int64
}

type enum interface {
	integer
	fmt.Stringer
}

// ControlEnum maps to dropdown kind of list.
type ControlEnum[T enum] struct {
	Name        string
	Description string
	Value       T
	ValidValues []T
	OnChange    func(T) error
}

func (ce *ControlEnum[T]) Describe() (name, description string) {
	return ce.Name, ce.Description
}
func (ce *ControlEnum[T]) ActualValue() any {
	return ce.Value
}
func (ce *ControlEnum[T]) ChangeValue(newValue any) error {
	v, ok := newValue.(T)
	if !ok {
		return fmt.Errorf("new value %T not of type %T", newValue, ce.Value)
	}
	if !slices.Contains(ce.ValidValues, v) {
		return fmt.Errorf("value %v of %T not valid: %w", v, v, ErrInvalidConfig)
	}
	var err error
	if ce.OnChange != nil {
		err = ce.OnChange(v)
	}
	if err == nil {
		ce.Value = v
	}
	return err
}

// CurvePoint is a control point for curve-type controls.
// X represents input (0-1), Y represents output (0-1).
type CurvePoint = ms2.Vec

// ControlCurve is a piecewise-linear response curve with editable control points.
// Points are in normalized 0-1 range for both X (input) and Y (output) and
// must be sorted by ascending X.
type ControlCurve struct {
	Name        string
	Description string
	Points      []CurvePoint
	OnChange    func([]CurvePoint) error
}

func (cc *ControlCurve) Describe() (name, description string) {
	return cc.Name, cc.Description
}

func (cc *ControlCurve) ActualValue() any {
	return cc.Points
}

func (cc *ControlCurve) ChangeValue(newValue any) error {
	pts, ok := newValue.([]CurvePoint)
	if !ok {
		return fmt.Errorf("new value %T not of type []CurvePoint", newValue)
	}
	if err := ValidateCurve(pts); err != nil {
		return err
	}
	var err error
	if cc.OnChange != nil {
		err = cc.OnChange(pts)
	}
	if err == nil {
		cc.Points = pts
	}
	return err
}

// ValidateCurve checks curve points lie in the unit square and are sorted by X.
// A nil or empty curve is valid and means identity.
func ValidateCurve(pts []CurvePoint) error {
	for i, p := range pts {
		if p.X < 0 || p.X > 1 || p.Y < 0 || p.Y > 1 {
			return fmt.Errorf("curve point %d (%v,%v) outside unit square: %w", i, p.X, p.Y, ErrInvalidConfig)
		}
		if i > 0 && p.X < pts[i-1].X {
			return fmt.Errorf("curve point %d not sorted by X: %w", i, ErrInvalidConfig)
		}
	}
	return nil
}
