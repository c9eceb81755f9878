package service

import (
	"strings"

	"projecthub/internal/model"
)

func validateProgress(o model.Optional[int]) error {
	if !o.Set {
		return nil
	}
	if o.Null {
		return model.NewValidationError("progress", "cannot be null")
	}
	if o.Value < 0 || o.Value > 100 {
		return model.NewValidationError("progress", "must be between 0 and 100")
	}
	return nil
}

func validateRequiredText(field string, o model.Optional[string]) error {
	if !o.Set {
		return nil
	}
	if o.Null {
		return model.NewValidationError(field, "cannot be null")
	}
	if strings.TrimSpace(o.Value) == "" {
		return model.NewValidationError(field, "cannot be empty")
	}
	return nil
}

func validateProjectInput(in model.ProjectInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return model.NewValidationError("name", "is required")
	}
	if in.Status != nil && !in.Status.Valid() {
		return model.NewValidationError("status", "unknown project status")
	}
	return nil
}

func validateProjectPatch(p model.ProjectPatch) error {
	if p.OwnerID.Set {
		return model.NewValidationError("ownerId", "is immutable")
	}
	if err := validateRequiredText("name", p.Name); err != nil {
		return err
	}
	if p.Status.Set {
		if p.Status.Null {
			return model.NewValidationError("status", "cannot be null")
		}
		if !p.Status.Value.Valid() {
			return model.NewValidationError("status", "unknown project status")
		}
	}
	return validateProgress(p.Progress)
}

func validateTaskInput(in model.TaskInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return model.NewValidationError("title", "is required")
	}
	if strings.TrimSpace(in.ProjectID) == "" {
		return model.NewValidationError("projectId", "is required")
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return model.NewValidationError("priority", "unknown priority")
	}
	if in.Status != nil && !in.Status.Valid() {
		return model.NewValidationError("status", "unknown task status")
	}
	if in.AssigneeID != nil && *in.AssigneeID == "" {
		return model.NewValidationError("assigneeId", "cannot be empty")
	}
	return nil
}

func validateTaskPatch(p model.TaskPatch) error {
	if p.ProjectID.Set {
		return model.NewValidationError("projectId", "is immutable")
	}
	if p.CreatorID.Set {
		return model.NewValidationError("creatorId", "is immutable")
	}
	if err := validateRequiredText("title", p.Title); err != nil {
		return err
	}
	if p.Status.Set {
		if p.Status.Null {
			return model.NewValidationError("status", "cannot be null")
		}
		if !p.Status.Value.Valid() {
			return model.NewValidationError("status", "unknown task status")
		}
	}
	if p.Priority.Set {
		if p.Priority.Null {
			return model.NewValidationError("priority", "cannot be null")
		}
		if !p.Priority.Value.Valid() {
			return model.NewValidationError("priority", "unknown priority")
		}
	}
	if p.AssigneeID.HasValue() && p.AssigneeID.Value == "" {
		return model.NewValidationError("assigneeId", "cannot be empty")
	}
	return validateProgress(p.Progress)
}
