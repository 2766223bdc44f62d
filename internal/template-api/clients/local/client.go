// Package local serves templates from YAML descriptors on disk and executes
// them by rendering their skeleton directory.
package local

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"template-task-service/internal/template-api/apperr"
	"template-task-service/internal/template-api/clients"
	"template-task-service/internal/template-api/models"
	"template-task-service/pkg/validation"
)

const (
	descriptorFile = "template.yaml"
	skeletonDir    = "skeleton"
	logFile        = "logs.txt"
	// OutputPrefix names task output directories: output_{taskID}.
	OutputPrefix = "output_"
)

type Config struct {
	TemplatesDir string
	CatalogFile  string
	// OutputDir holds task output directories; defaults to TemplatesDir.
	OutputDir string
}

type Client struct {
	templatesDir string
	catalogFile  string
	outputDir    string
	newID        func() string
	now          func() time.Time
}

var (
	_ clients.Backend   = (*Client)(nil)
	_ clients.LogReader = (*Client)(nil)
)

// entry is a loaded descriptor and the directory it was found in.
type entry struct {
	template models.Template
	dir      string
}

// New resolves the configured directories, creating the templates directory when missing.
func New(cfg Config) (*Client, error) {
	templatesDir, err := filepath.Abs(cfg.TemplatesDir)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFileAccess, err, "invalid templates directory %s", cfg.TemplatesDir)
	}
	if _, err := os.Stat(templatesDir); os.IsNotExist(err) {
		hlog.Warnf("Templates directory does not exist, creating: %s", templatesDir)
		if err := os.MkdirAll(templatesDir, 0o755); err != nil {
			return nil, apperr.Wrap(apperr.KindFileAccess, err, "cannot create templates directory %s", templatesDir)
		}
	}

	outputDir := templatesDir
	if cfg.OutputDir != "" {
		if outputDir, err = filepath.Abs(cfg.OutputDir); err != nil {
			return nil, apperr.Wrap(apperr.KindFileAccess, err, "invalid output directory %s", cfg.OutputDir)
		}
	}

	return &Client{
		templatesDir: templatesDir,
		catalogFile:  cfg.CatalogFile,
		outputDir:    outputDir,
		newID:        uuid.NewString,
		now:          time.Now,
	}, nil
}

// OutputRoot is the directory task outputs are created in.
func (c *Client) OutputRoot() string { return c.outputDir }

// TaskDir returns the output directory for taskID.
func (c *Client) TaskDir(taskID string) string {
	return filepath.Join(c.outputDir, OutputPrefix+taskID)
}

func (c *Client) ListTemplates(ctx context.Context, filters models.ListFilters) (*models.TemplateList, error) {
	hlog.CtxInfof(ctx, "Listing local templates from %s", c.templatesDir)
	entries := c.loadTemplates()
	templates := make([]models.Template, 0, len(entries))
	for _, e := range entries {
		templates = append(templates, e.template)
	}
	return clients.FilterTemplates(templates, filters), nil
}

func (c *Client) GetTemplate(ctx context.Context, name string) (*models.Template, error) {
	e, err := c.find(name)
	if err != nil {
		return nil, err
	}
	return &e.template, nil
}

func (c *Client) GetParameters(ctx context.Context, name string) (*models.ParameterSchema, error) {
	e, err := c.find(name)
	if err != nil {
		return nil, err
	}
	if len(e.template.Spec.Parameters) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "template parameters not found: %s", name)
	}
	return &models.ParameterSchema{Parameters: e.template.Spec.Parameters}, nil
}

// ExecuteTemplate validates parameters and, unless it is a dry run, renders the
// skeleton into a fresh output directory. Execution finishes before it returns.
func (c *Client) ExecuteTemplate(ctx context.Context, task models.TemplateTask) (*models.TaskHandle, error) {
	hlog.CtxInfof(ctx, "Executing local template %s (dry run: %t)", task.TemplateName, task.DryRun)

	e, err := c.find(task.TemplateName)
	if err != nil {
		return nil, err
	}
	if err := validateParameters(e.template.Spec.Parameters, task.Parameters); err != nil {
		return nil, err
	}

	skeleton := filepath.Join(e.dir, skeletonDir)
	if info, err := os.Stat(skeleton); err != nil || !info.IsDir() {
		return nil, apperr.New(apperr.KindFileAccess, "skeleton directory not found: %s", skeleton)
	}

	taskID := c.newID()
	outDir := c.TaskDir(taskID)
	handle := &models.TaskHandle{
		TaskID:        taskID,
		TemplateName:  task.TemplateName,
		Status:        models.StatusPending,
		CreatedAt:     c.now(),
		LogURL:        "file://" + filepath.Join(outDir, logFile),
		CompletionURL: "file://" + outDir,
	}
	if task.DryRun {
		return handle, nil
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindFileAccess, err, "cannot create output root %s", c.outputDir)
	}
	if err := os.Mkdir(outDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.KindFileAccess, err, "cannot create output directory %s", outDir)
	}

	log := newTaskLog(filepath.Join(outDir, logFile), c.now)
	log.write(levelInfo, "Starting template %s", task.TemplateName)
	log.write(levelInfo, "Rendering %s into %s", skeleton, outDir)
	if err := renderTree(skeleton, outDir, task.Parameters); err != nil {
		log.write(levelError, "Rendering failed: %v", err)
		hlog.CtxErrorf(ctx, "Rendering template %s failed: %v", task.TemplateName, err)
		return nil, apperr.Wrap(apperr.KindExecution, err, "failed to execute template %s", task.TemplateName)
	}
	log.write(levelInfo, "Template %s completed", task.TemplateName)

	handle.Status = models.StatusCompleted
	return handle, nil
}

// GetTaskStatus reports completed unless the task log contains an ERROR line.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*models.TaskStatus, error) {
	dir := c.TaskDir(taskID)
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, apperr.New(apperr.KindNotFound, "task not found: %s", taskID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFileAccess, err, "cannot read task directory %s", dir)
	}

	status := models.StatusCompleted
	content, err := os.ReadFile(filepath.Join(dir, logFile))
	if err != nil && !os.IsNotExist(err) {
		return nil, apperr.Wrap(apperr.KindFileAccess, err, "cannot read task log for %s", taskID)
	}
	if logHasError(string(content)) {
		status = models.StatusFailed
	}

	return &models.TaskStatus{
		TaskID: taskID,
		Status: status,
		Raw: map[string]interface{}{
			"id":         taskID,
			"status":     status,
			"output_dir": dir,
			"created_at": info.ModTime().Format(time.RFC3339),
		},
	}, nil
}

// GetTaskLogs returns the task log one entry per line.
func (c *Client) GetTaskLogs(ctx context.Context, taskID string) ([]models.TaskLogEntry, error) {
	dir := c.TaskDir(taskID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, apperr.New(apperr.KindNotFound, "task not found: %s", taskID)
	}
	f, err := os.Open(filepath.Join(dir, logFile))
	if os.IsNotExist(err) {
		return []models.TaskLogEntry{}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFileAccess, err, "cannot open task log for %s", taskID)
	}
	defer f.Close()

	entries := []models.TaskLogEntry{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			entries = append(entries, parseLogLine(line))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindFileAccess, err, "cannot read task log for %s", taskID)
	}
	return entries, nil
}

func (c *Client) find(name string) (*entry, error) {
	for _, e := range c.loadTemplates() {
		if e.template.Metadata.Name == name {
			return &e, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "template not found: %s", name)
}

// loadTemplates prefers the catalog file and falls back to walking the templates directory.
func (c *Client) loadTemplates() []entry {
	if c.catalogFile != "" {
		if _, err := os.Stat(c.catalogFile); err == nil {
			if entries, ok := c.loadFromCatalog(); ok {
				return entries
			}
		}
	}
	return c.scanTemplatesDir()
}

type location struct {
	Kind string `yaml:"kind"`
	Spec struct {
		Targets []string `yaml:"targets"`
	} `yaml:"spec"`
}

func (c *Client) loadFromCatalog() ([]entry, bool) {
	raw, err := os.ReadFile(c.catalogFile)
	if err != nil {
		hlog.Errorf("Error reading catalog %s: %v", c.catalogFile, err)
		return nil, false
	}
	var loc location
	if err := yaml.Unmarshal(raw, &loc); err != nil {
		hlog.Errorf("Error parsing catalog %s: %v", c.catalogFile, err)
		return nil, false
	}
	if loc.Kind != "Location" {
		hlog.Warnf("Catalog file %s is not a Location, scanning %s instead", c.catalogFile, c.templatesDir)
		return nil, false
	}

	base := filepath.Dir(c.catalogFile)
	var entries []entry
	for _, target := range loc.Spec.Targets {
		if !strings.HasSuffix(target, descriptorFile) {
			continue
		}
		path := target
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, target)
		}
		e, err := loadDescriptor(path)
		if err != nil {
			hlog.Errorf("Error loading template %s: %v", target, err)
			continue
		}
		entries = append(entries, *e)
	}
	return entries, true
}

func (c *Client) scanTemplatesDir() []entry {
	var entries []entry
	err := filepath.WalkDir(c.templatesDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != c.templatesDir && strings.HasPrefix(d.Name(), OutputPrefix) {
			return filepath.SkipDir
		}
		if d.IsDir() || d.Name() != descriptorFile {
			return nil
		}
		e, err := loadDescriptor(path)
		if err != nil {
			hlog.Errorf("Error loading template %s: %v", path, err)
			return nil
		}
		entries = append(entries, *e)
		return nil
	})
	if err != nil {
		hlog.Errorf("Error scanning templates directory %s: %v", c.templatesDir, err)
	}
	return entries
}

func loadDescriptor(path string) (*entry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tpl models.Template
	if err := yaml.Unmarshal(raw, &tpl); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if tpl.Metadata.Name == "" {
		return nil, fmt.Errorf("%s has no metadata.name", path)
	}
	if tpl.Metadata.Title == "" {
		tpl.Metadata.Title = tpl.Spec.Title
	}
	tpl.Metadata.CloudProvider = cloudProviderFromPath(path)
	if tpl.Metadata.CloudProvider == "" {
		tpl.Metadata.CloudProvider = models.CloudProviderFromTags(tpl.Metadata.Tags)
	}
	return &entry{template: tpl, dir: filepath.Dir(path)}, nil
}

func cloudProviderFromPath(path string) string {
	slashed := filepath.ToSlash(path)
	for _, provider := range []string{"aws", "azure", "gcp"} {
		if strings.Contains(slashed, "/"+provider+"/") {
			return provider
		}
	}
	return ""
}

// validateParameters checks required names first, then each block as a JSON schema.
func validateParameters(blocks []map[string]interface{}, params map[string]interface{}) error {
	if missing := validation.MissingRequired(blocks, params); len(missing) > 0 {
		return apperr.New(apperr.KindValidation, "missing required parameters: %s", strings.Join(missing, ", "))
	}
	for i, block := range blocks {
		err := validation.ValidateParameters(block, params)
		if errors.Is(err, validation.ErrSchemaCompile) {
			hlog.Warnf("Skipping parameter block %d: %v", i, err)
			continue
		}
		if err != nil {
			return apperr.Wrap(apperr.KindValidation, err, "invalid parameters")
		}
	}
	return nil
}
