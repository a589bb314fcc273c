package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	faults "github.com/labelport/annotation_tool/pkg/errors"
)

// Project is an annotation project as listed by the portal. Fields the
// client does not interpret are kept in Raw.
type Project struct {
	UID            int             `json:"uid"`
	Name           string          `json:"name"`
	AssignedToUser *bool           `json:"assigned_to_user,omitempty"`
	Raw            json.RawMessage `json:"-"`
}

// Assigned reports whether the project is assigned to the current user.
// Projects without the flag count as assigned.
func (p Project) Assigned() bool {
	return p.AssignedToUser == nil || *p.AssignedToUser
}

// Projects lists annotation projects. With onlyAssigned, projects not
// assigned to the current user are skipped.
func (c *Client) Projects(ctx context.Context, onlyAssigned bool) ([]Project, error) {
	status, body, err := c.do(ctx, EndpointProjects, http.MethodGet, TasksPath, nil)
	if err != nil {
		return nil, faults.NewBuilder(faults.KindWebServerAPI).
			Wrap(err).
			WithOp("portal.Projects").
			WithMessage("Unable to get projects data.").
			Build()
	}
	if status != http.StatusOK {
		return nil, faults.NewBuilder(faults.KindWebServerAPI).
			WithOp("portal.Projects").
			WithInput("status", status).
			WithMessagef("Unable to get projects data. %d", status).
			Build()
	}

	var envelope struct {
		Projects []json.RawMessage `json:"projects"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, faults.NewBuilder(faults.KindWebServerAPI).
			Wrap(err).
			WithOp("portal.Projects").
			WithMessage("Unable to get projects data. Invalid response.").
			Build()
	}

	projects := make([]Project, 0, len(envelope.Projects))
	for _, raw := range envelope.Projects {
		var p Project
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, faults.NewBuilder(faults.KindWebServerAPI).
				Wrap(err).
				WithOp("portal.Projects").
				WithMessage("Unable to get projects data. Invalid project entry.").
				Build()
		}
		if onlyAssigned && !p.Assigned() {
			continue
		}
		p.Raw = raw
		projects = append(projects, p)
	}
	return projects, nil
}

// CompleteTask moves a project to its next stage, reporting the time spent
func (c *Client) CompleteTask(ctx context.Context, projectUID int, durationHours float64) error {
	payload := map[string]float64{"duration_hours": durationHours}

	status, body, err := c.do(ctx, EndpointCompleteTask, http.MethodPost, fmt.Sprintf(CompleteTaskPath, projectUID), payload)
	if err != nil {
		return faults.NewBuilder(faults.KindWebServerAPI).
			Wrap(err).
			WithOp("portal.CompleteTask").
			WithInput("project_uid", projectUID).
			WithMessagef("Internal Server Error with project uid %d", projectUID).
			Build()
	}
	if status == http.StatusOK {
		return nil
	}

	message := fmt.Sprintf("Internal Server Error with project uid %d", projectUID)
	var detail any
	if json.Unmarshal(body, &detail) == nil {
		if s, ok := detail.(string); ok {
			message = s
		} else if compact, err := json.Marshal(detail); err == nil {
			message = string(compact)
		}
	}

	return faults.NewBuilder(faults.KindWebServerAPI).
		WithOp("portal.CompleteTask").
		WithInput("project_uid", projectUID).
		WithInput("status", status).
		WithMessage(message).
		Build()
}
