package ops

import (
	"fmt"

	"github.com/AmeliaRose802/enhanced-ado-mcp-sub011/internal/errors"
)

// ValidateInput contains parameters for the Validate operation.
type ValidateInput struct {
	QueryHandle string
}

// ValidateOutput reports handle liveness. A dead handle is data here, not
// an error envelope: the agent asked a question and gets an answer.
type ValidateOutput struct {
	QueryHandle      string `json:"query_handle"`
	Valid            bool   `json:"valid"`
	Code             string `json:"code,omitempty"`
	Count            int    `json:"count,omitempty"`
	ExpiresInSeconds int    `json:"expires_in_seconds,omitempty"`
	Message          string `json:"message"`
}

// Validate checks whether a handle is still usable.
func Validate(env *Env, input ValidateInput) (*ValidateOutput, error) {
	if input.QueryHandle == "" {
		return nil, errors.NewInvalidRequest("query_handle is required")
	}

	rec, err := env.Store.Get(input.QueryHandle)
	if err != nil {
		if sErr, ok := err.(*errors.Error); ok && errors.IsHandleGone(err) {
			return &ValidateOutput{
				QueryHandle: input.QueryHandle,
				Valid:       false,
				Code:        string(sErr.Code),
				Message:     "Handle is no longer usable. Re-run the originating query to obtain a fresh handle.",
			}, nil
		}
		return nil, err
	}

	remaining := int(rec.ExpiresAt.Sub(env.now()).Seconds())
	return &ValidateOutput{
		QueryHandle:      rec.Token,
		Valid:            true,
		Count:            len(rec.IDs),
		ExpiresInSeconds: remaining,
		Message:          fmt.Sprintf("Handle is valid for %d more seconds and references %d items.", remaining, len(rec.IDs)),
	}, nil
}
