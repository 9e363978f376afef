package tracking

import (
	"errors"
	"fmt"
)

// ErrEmptyRunName means a run-creation request had no name. The backend
// would accept it and mint an anonymous run, which then defeats every
// name-based discovery tier; the request constructor makes that state
// unrepresentable instead.
var ErrEmptyRunName = errors.New("run name must not be empty")

// RunRequest is a validated run-creation request. Build it with
// NewRunRequest; a zero RunRequest fails validation.
type RunRequest struct {
	ExperimentID string
	Name         string
	Tags         map[string]string
}

// NewRunRequest builds a run-creation request, rejecting an empty name
// at construction time. Tags are copied so later mutation of the
// caller's map cannot change the request.
func NewRunRequest(experimentID, name string, tags map[string]string) (RunRequest, error) {
	req := RunRequest{
		ExperimentID: experimentID,
		Name:         name,
	}
	if err := req.validateName(); err != nil {
		return RunRequest{}, err
	}
	if tags != nil {
		req.Tags = make(map[string]string, len(tags))
		for k, v := range tags {
			req.Tags[k] = v
		}
	}
	return req, nil
}

// Validate re-checks the request. Client implementations call this in
// CreateRun so a hand-built request cannot bypass the constructor's
// guarantees.
func (r RunRequest) Validate() error {
	if err := r.validateName(); err != nil {
		return err
	}
	if r.ExperimentID == "" {
		return fmt.Errorf("run request requires an experiment id")
	}
	return nil
}

func (r RunRequest) validateName() error {
	if r.Name == "" {
		return ErrEmptyRunName
	}
	return nil
}
