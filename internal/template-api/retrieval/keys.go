package retrieval

import (
	"fmt"
	"strings"

	"template-task-service/internal/template-api/models"
)

// KeyContext is everything a key rule may look at.
type KeyContext struct {
	ExplicitKey  string
	Task         models.TemplateTask
	TaskID       string
	StatusOutput map[string]interface{}
}

// KeyRule returns the artifact key it derives, or false when it does not apply.
type KeyRule func(KeyContext) (string, bool)

// DefaultKeyRules is the lookup order used when none is configured. First match wins.
var DefaultKeyRules = []KeyRule{
	ExplicitKey,
	NameParameterKey,
	CreateZipStepKey,
	EntityRefKey,
	FallbackKey,
}

// DetermineKey evaluates rules in order and returns the first key produced.
func DetermineKey(kc KeyContext, rules []KeyRule) string {
	for _, rule := range rules {
		if key, ok := rule(kc); ok {
			return key
		}
	}
	return ""
}

func ExplicitKey(kc KeyContext) (string, bool) {
	return kc.ExplicitKey, kc.ExplicitKey != ""
}

// NameParameterKey maps a "name" task parameter to templates/{name}.zip.
func NameParameterKey(kc KeyContext) (string, bool) {
	name, ok := kc.Task.Parameters["name"]
	if !ok || name == nil {
		return "", false
	}
	return fmt.Sprintf("templates/%v.zip", name), true
}

// CreateZipStepKey reads output.s3Key from the step with id "create-zip".
func CreateZipStepKey(kc KeyContext) (string, bool) {
	steps, _ := kc.StatusOutput["steps"].([]interface{})
	for _, raw := range steps {
		step, ok := raw.(map[string]interface{})
		if !ok || step["id"] != "create-zip" {
			continue
		}
		out, _ := step["output"].(map[string]interface{})
		if key, ok := out["s3Key"].(string); ok && key != "" {
			return key, true
		}
	}
	return "", false
}

// EntityRefKey derives outputs/{entityRef}.zip with ':' and '/' flattened to '_'.
func EntityRefKey(kc KeyContext) (string, bool) {
	ref, ok := kc.StatusOutput["entityRef"].(string)
	if !ok || ref == "" {
		return "", false
	}
	flat := strings.NewReplacer(":", "_", "/", "_").Replace(ref)
	return "outputs/" + flat + ".zip", true
}

func FallbackKey(kc KeyContext) (string, bool) {
	return fmt.Sprintf("outputs/%s_%s.zip", kc.Task.TemplateName, kc.TaskID), true
}

// statusOutput extracts the "output" mapping of a raw status payload.
func statusOutput(raw map[string]interface{}) map[string]interface{} {
	out, _ := raw["output"].(map[string]interface{})
	return out
}
