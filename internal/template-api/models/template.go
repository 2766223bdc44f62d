package models

import (
	"fmt"
	"strings"
)

// TemplateRef identifies a template, optionally qualified by namespace and kind.
type TemplateRef struct {
	Namespace string
	Kind      string
	Name      string
}

const (
	DefaultNamespace = "default"
	DefaultKind      = "template"
)

// ParseTemplateRef accepts "name", "namespace:name" or "namespace:kind:name".
func ParseTemplateRef(s string) TemplateRef {
	ref := TemplateRef{Namespace: DefaultNamespace, Kind: DefaultKind, Name: s}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 3:
		ref.Namespace, ref.Kind, ref.Name = parts[0], parts[1], parts[2]
	case 2:
		ref.Namespace, ref.Name = parts[0], parts[1]
	}
	return ref
}

// String renders the catalog entity reference, e.g. "template:default/my-template".
func (r TemplateRef) String() string {
	return fmt.Sprintf("%s:%s/%s", r.Kind, r.Namespace, r.Name)
}

type TemplateMetadata struct {
	Name          string            `json:"name" yaml:"name"`
	Title         string            `json:"title" yaml:"title"`
	Description   string            `json:"description,omitempty" yaml:"description"`
	Tags          []string          `json:"tags,omitempty" yaml:"tags"`
	Annotations   map[string]string `json:"annotations,omitempty" yaml:"annotations"`
	CloudProvider string            `json:"cloud_provider,omitempty" yaml:"cloud_provider"`
}

type TemplateSpec struct {
	Owner      string                   `json:"owner" yaml:"owner"`
	Type       string                   `json:"type" yaml:"type"`
	Templater  string                   `json:"templater,omitempty" yaml:"templater"`
	Title      string                   `json:"-" yaml:"title"`
	Parameters []map[string]interface{} `json:"parameters,omitempty" yaml:"parameters"`
}

type TemplateOutput struct {
	Links []map[string]interface{} `json:"links,omitempty" yaml:"links"`
}

// Template is the normalized template record served by every backend.
type Template struct {
	APIVersion string           `json:"apiVersion" yaml:"apiVersion"`
	Kind       string           `json:"kind" yaml:"kind"`
	Metadata   TemplateMetadata `json:"metadata" yaml:"metadata"`
	Spec       TemplateSpec     `json:"spec" yaml:"spec"`
	Output     *TemplateOutput  `json:"output,omitempty" yaml:"output"`
}

// HasTag reports whether the template carries tag.
func (t Template) HasTag(tag string) bool {
	for _, candidate := range t.Metadata.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

// TemplateList is the result of a list call.
type TemplateList struct {
	Items      []Template `json:"items"`
	TotalCount int        `json:"total_count"`
}

// ParameterSchema holds the parameter blocks of a template. Each block is a
// JSON-schema object with "properties" and "required".
type ParameterSchema struct {
	Parameters []map[string]interface{} `json:"parameters"`
}

// ListFilters narrows a template listing. Zero values disable a filter.
type ListFilters struct {
	CloudProvider string
	TemplateType  string
	Tags          []string
	Owner         string
	Search        string
}

// CloudProviderFromTags returns the first of aws, azure, gcp found in tags.
func CloudProviderFromTags(tags []string) string {
	for _, provider := range []string{"aws", "azure", "gcp"} {
		for _, tag := range tags {
			if tag == provider {
				return provider
			}
		}
	}
	return ""
}
