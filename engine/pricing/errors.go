package pricing

import (
	"errors"

	"github.com/WessleyAI/wessley-pricing/engine/artifact"
	"github.com/WessleyAI/wessley-pricing/engine/domain"
)

// Errors returned by Predict. Compare with errors.Is.
var (
	ErrSchemaMismatch   = domain.ErrSchemaMismatch
	ErrUnseenCategory   = artifact.ErrUnseenCategory
	ErrArtifactNotFound = artifact.ErrArtifactNotFound
	ErrArtifactCorrupt  = artifact.ErrArtifactCorrupt
	ErrLayoutMismatch   = errors.New("feature layout does not match model")
	ErrNonFinite        = errors.New("model returned a non-finite value")
)

// Class says who is responsible for a failed prediction.
type Class int

const (
	// ClassClient means the input was rejected; retrying it will not help.
	ClassClient Class = iota + 1
	// ClassServer means the deployment is misconfigured or broken.
	ClassServer
)

func (c Class) String() string {
	switch c {
	case ClassClient:
		return "client"
	case ClassServer:
		return "server"
	}
	return "unknown"
}

// Classify maps a Predict error to its Class. nil maps to 0.
func Classify(err error) Class {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrSchemaMismatch), errors.Is(err, ErrUnseenCategory):
		return ClassClient
	default:
		return ClassServer
	}
}
