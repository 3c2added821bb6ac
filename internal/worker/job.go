package worker

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/DukeRupert/designaudit/internal/domain"
)

// Job type constants. These must match the JobHandler.Type() values.
const (
	JobTypeRunDesign = "run_design"
)

// Job is one unit of work submitted to a Pool.
type Job struct {
	ID      uuid.UUID
	Type    string
	Payload []byte
}

// RunDesignPayload is the payload of a design job. When ProjectID is set the
// finished calculation is also saved as the next version of that project.
type RunDesignPayload struct {
	CalculationType string        `json:"calculationType"`
	DesignType      string        `json:"designType,omitempty"`
	Description     string        `json:"description,omitempty"`
	Inputs          domain.Params `json:"inputs"`

	ProjectID      string `json:"projectId,omitempty"`
	CreatedBy      string `json:"createdBy,omitempty"`
	VersionTag     string `json:"versionTag,omitempty"`
	ArchiveReports bool   `json:"archiveReports,omitempty"`
}

// RunDesignOutput summarizes a finished design job.
type RunDesignOutput struct {
	LogID           uuid.UUID  `json:"logId"`
	CalculationType string     `json:"calculationType"`
	Failed          bool       `json:"failed"`
	CanExport       bool       `json:"canExport"`
	Violations      int        `json:"violations"`
	PendingOverride int        `json:"pendingOverride"`
	VersionID       *uuid.UUID `json:"versionId,omitempty"`
	VersionNumber   int        `json:"versionNumber,omitempty"`
}

// NewJob encodes payload into a job of the given type.
func NewJob(jobType string, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("marshal payload: %w", err)
	}
	return Job{ID: uuid.New(), Type: jobType, Payload: data}, nil
}
