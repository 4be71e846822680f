// Package validation provides the option checks shared by the dataflow
// constructors. Every helper returns a *errors.ValidationError so callers
// get consistent messages and can match errors.ErrInvalidConfiguration.
package validation
