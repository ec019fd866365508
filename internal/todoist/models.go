package todoist

import "icstask/internal/models"

// Task represents a Todoist task
type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id,omitempty"`
	Content   string `json:"content"`
	Due       *Due   `json:"due,omitempty"`
	URL       string `json:"url,omitempty"`
}

// Due represents due date info
type Due struct {
	String   string `json:"string,omitempty"`   // Human readable
	Date     string `json:"date,omitempty"`     // YYYY-MM-DD
	DateTime string `json:"datetime,omitempty"` // RFC3339
	Timezone string `json:"timezone,omitempty"`
}

// CreateTaskRequest for creating a new task
type CreateTaskRequest struct {
	Content     string `json:"content"`
	ProjectID   string `json:"project_id,omitempty"`
	DueDate     string `json:"due_date,omitempty"`
	DueDatetime string `json:"due_datetime,omitempty"`
}

// UpdateTaskRequest for updating a task
type UpdateTaskRequest struct {
	Content     *string `json:"content,omitempty"`
	DueString   *string `json:"due_string,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	DueDatetime *string `json:"due_datetime,omitempty"`
}

// noDate clears the due of a task.
const noDate = "no date"

func (t Task) remote() models.RemoteTask {
	rt := models.RemoteTask{ID: t.ID, Content: t.Content}
	if t.Due != nil && (t.Due.Date != "" || t.Due.DateTime != "") {
		rt.Due = &models.DuePayload{Date: t.Due.Date, DateTime: t.Due.DateTime}
	}
	return rt
}

func createRequest(projectID string, p models.TaskPayload) *CreateTaskRequest {
	req := &CreateTaskRequest{Content: p.Content, ProjectID: projectID}
	if p.Due != nil {
		req.DueDate = p.Due.Date
		req.DueDatetime = p.Due.DateTime
	}
	return req
}

func updateRequest(p models.TaskPayload) *UpdateTaskRequest {
	content := p.Content
	req := &UpdateTaskRequest{Content: &content}
	switch {
	case p.Due == nil:
		s := noDate
		req.DueString = &s
	case p.Due.Date != "":
		d := p.Due.Date
		req.DueDate = &d
	default:
		dt := p.Due.DateTime
		req.DueDatetime = &dt
	}
	return req
}
