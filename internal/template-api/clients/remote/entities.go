package remote

import (
	"encoding/json"

	"template-task-service/internal/template-api/models"
)

type parameterBlocks []map[string]interface{}

// UnmarshalJSON accepts a single parameter object as well as a list of them.
func (p *parameterBlocks) UnmarshalJSON(data []byte) error {
	var list []map[string]interface{}
	if err := json.Unmarshal(data, &list); err == nil {
		*p = list
		return nil
	}
	var single map[string]interface{}
	if err := json.Unmarshal(data, &single); err != nil {
		return err
	}
	if single != nil {
		*p = parameterBlocks{single}
	}
	return nil
}

// entity is the catalog representation of a template.
type entity struct {
	APIVersion string `json:"apiVersion"`
	Kind       string `json:"kind"`
	Metadata   struct {
		Name        string            `json:"name"`
		Title       string            `json:"title"`
		Description string            `json:"description"`
		Tags        []string          `json:"tags"`
		Annotations map[string]string `json:"annotations"`
	} `json:"metadata"`
	Spec struct {
		Owner      string          `json:"owner"`
		Type       string          `json:"type"`
		Title      string          `json:"title"`
		Templater  string          `json:"templater"`
		Parameters parameterBlocks `json:"parameters"`
		Output     struct {
			Links []map[string]interface{} `json:"links"`
		} `json:"output"`
	} `json:"spec"`
}

func (e entity) toTemplate() models.Template {
	tpl := models.Template{
		APIVersion: orDefault(e.APIVersion, "scaffolder.backstage.io/v1beta3"),
		Kind:       orDefault(e.Kind, "Template"),
		Metadata: models.TemplateMetadata{
			Name:          e.Metadata.Name,
			Title:         orDefault(e.Spec.Title, e.Metadata.Title),
			Description:   e.Metadata.Description,
			Tags:          e.Metadata.Tags,
			Annotations:   e.Metadata.Annotations,
			CloudProvider: models.CloudProviderFromTags(e.Metadata.Tags),
		},
		Spec: models.TemplateSpec{
			Owner:      e.Spec.Owner,
			Type:       orDefault(e.Spec.Type, "other"),
			Templater:  orDefault(e.Spec.Templater, "v1beta3"),
			Parameters: e.Spec.Parameters,
		},
	}
	if len(e.Spec.Output.Links) > 0 {
		tpl.Output = &models.TemplateOutput{Links: e.Spec.Output.Links}
	}
	return tpl
}

// decodeEntities accepts a bare array or an {"items": [...]} envelope.
func decodeEntities(raw json.RawMessage) ([]entity, error) {
	var list []entity
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var envelope struct {
		Items []entity `json:"items"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return envelope.Items, nil
}

type event struct {
	CreatedAt string `json:"createdAt"`
	Type      string `json:"type"`
	Body      struct {
		Message string `json:"message"`
		StepID  string `json:"stepId"`
		Status  string `json:"status"`
	} `json:"body"`
}

func (e event) toLogEntry() models.TaskLogEntry {
	return models.TaskLogEntry{
		Timestamp: e.CreatedAt,
		Type:      e.Type,
		Message:   e.Body.Message,
		Step:      e.Body.StepID,
		Status:    e.Body.Status,
	}
}

func decodeEvents(raw json.RawMessage) ([]event, error) {
	var list []event
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var envelope struct {
		Events []event `json:"events"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return envelope.Events, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
