package cli

import (
	"fmt"
	"time"

	"github.com/zensgit/metasheet2-sub006/engine"
)

type state interface {
	~int
	String() string
}

// stateValue is a custom flag value for one of the engine's state enums.
type stateValue[T state] struct {
	v       *T
	mapFunc func(string) T
	name    string
}

func newStateValue[T state](v *T, mapFunc func(string) T, name string) *stateValue[T] {
	return &stateValue[T]{v: v, mapFunc: mapFunc, name: name}
}

func (v *stateValue[T]) Set(s string) error {
	mapped := v.mapFunc(s)
	if mapped == 0 {
		return fmt.Errorf("invalid %s %s", v.name, s)
	}

	*v.v = mapped
	return nil
}

func (v *stateValue[T]) String() string {
	if v.v == nil {
		return ""
	}
	return (*v.v).String()
}

func (v *stateValue[T]) Type() string {
	return v.name
}

// iso8601DurationValue is a custom flag value for a ISO 8601 duration.
type iso8601DurationValue engine.ISO8601Duration

func (v *iso8601DurationValue) Set(s string) error {
	d, err := engine.NewISO8601Duration(s)
	if err != nil {
		return err
	}

	*v = iso8601DurationValue(d)
	return nil
}

func (v iso8601DurationValue) String() string {
	return engine.ISO8601Duration(v).String()
}

func (v iso8601DurationValue) Type() string {
	return "iso8601Duration"
}

type timeValue time.Time

func (v *timeValue) Set(s string) error {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}

	*v = timeValue(t)
	return nil
}

func (v timeValue) String() string {
	if time.Time(v).IsZero() {
		return ""
	}
	return time.Time(v).Format(time.RFC3339)
}

func (v timeValue) Type() string {
	return "time"
}
