package logging

import "time"

// Field mutates a log entry
type Field interface {
	Apply(entry *Entry)
}

type kvField struct {
	key   string
	value any
}

func (f kvField) Apply(entry *Entry) {
	entry.Fields[f.key] = f.value
}

type errField struct{ err error }

func (f errField) Apply(entry *Entry) {
	entry.Error = f.err.Error()
}

type componentField struct{ component string }

func (f componentField) Apply(entry *Entry) {
	entry.Component = f.component
}

type modelField struct{ model string }

func (f modelField) Apply(entry *Entry) {
	entry.Model = f.model
}

type requestIDField struct{ id string }

func (f requestIDField) Apply(entry *Entry) {
	entry.RequestID = f.id
}

// String creates a string field
func String(key, value string) Field {
	return kvField{key: key, value: value}
}

// Int creates an integer field
func Int(key string, value int) Field {
	return kvField{key: key, value: value}
}

// Float creates a float field
func Float(key string, value float64) Field {
	return kvField{key: key, value: value}
}

// Bool creates a boolean field
func Bool(key string, value bool) Field {
	return kvField{key: key, value: value}
}

// Duration creates a duration field rendered as a Go duration string
func Duration(key string, value time.Duration) Field {
	return kvField{key: key, value: value.String()}
}

// Err attaches an error to the entry
func Err(err error) Field {
	return errField{err: err}
}

// Component tags the entry with the emitting component
func Component(component string) Field {
	return componentField{component: component}
}

// Model tags the entry with a model name
func Model(name string) Field {
	return modelField{model: name}
}

// RequestID tags the entry with an HTTP request id
func RequestID(id string) Field {
	return requestIDField{id: id}
}
