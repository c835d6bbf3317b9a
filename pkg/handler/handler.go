// Package handler provides shared types for handler implementations and
// the platform layer. This package has zero internal dependencies to
// avoid import cycles between pkg/registry (which imports handler
// implementations) and the implementations themselves.
package handler

// Kind classifies a handler.
type Kind string

// Handler classifications.
const (
	// KindData marks a handler exposing CRUD resources of an external
	// API.
	KindData Kind = "data"

	// KindPredictive marks a handler exposing remotely served
	// predictive models as tables.
	KindPredictive Kind = "predictive"
)

// Status is the handler status contract value returned by connect and
// check-connection operations. Callers key table status off Success.
type Status struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// OK returns a successful status.
func OK() Status {
	return Status{Success: true}
}

// Errored returns a failed status carrying the error message.
func Errored(err error) Status {
	return Status{Success: false, ErrorMessage: err.Error()}
}

// ConnectionArg declares one recognized connection argument for a
// handler, with an example value for documentation surfaces.
type ConnectionArg struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Example     string `yaml:"example" json:"example"`
	Required    bool   `yaml:"required" json:"required"`
	Secret      bool   `yaml:"secret" json:"secret"`
}

// Descriptor is the immutable registration bundle a handler module hands
// to the registry: identity, classification, and the declared connection
// arguments. It is constructed once at handler initialization and passed
// by value.
type Descriptor struct {
	Name           string          `json:"name"`
	Version        string          `json:"version"`
	Kind           Kind            `json:"kind"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	ConnectionArgs []ConnectionArg `json:"connection_args"`
}
