package services

import (
	"github.com/cloudwego/hertz/pkg/common/hlog"

	"template-task-service/internal/template-api/clients/local"
	"template-task-service/internal/template-api/clients/remote"
	"template-task-service/internal/template-api/config"
)

// BuildBackends initializes every enabled backend. Backends that fail to
// initialize are logged and left out.
func BuildBackends(cfg *config.Config) []BackendEntry {
	var entries []BackendEntry

	if cfg.Remote.Enabled {
		c, err := remote.New(remote.Config{
			BaseURL:   cfg.Remote.BaseURL,
			AuthToken: cfg.Remote.AuthToken,
			Timeout:   cfg.Remote.RequestTimeout,
		})
		if err != nil {
			hlog.Errorf("Failed to initialize %s client: %v", config.BackendRemote, err)
		} else {
			entries = append(entries, BackendEntry{
				Name:      config.BackendRemote,
				Client:    c,
				Artifacts: cfg.Remote.Artifacts,
				Settings: map[string]interface{}{
					"base_url":  cfg.Remote.BaseURL,
					"s3_bucket": cfg.Remote.Artifacts.Bucket,
				},
			})
		}
	}

	if cfg.Local.Enabled {
		c, err := local.New(local.Config{
			TemplatesDir: cfg.Local.TemplatesDir,
			CatalogFile:  cfg.Local.CatalogFile,
			OutputDir:    cfg.Local.OutputDir,
		})
		if err != nil {
			hlog.Errorf("Failed to initialize %s client: %v", config.BackendLocal, err)
		} else {
			entries = append(entries, BackendEntry{
				Name:      config.BackendLocal,
				Client:    c,
				Artifacts: cfg.Local.Artifacts,
				Settings: map[string]interface{}{
					"templates_dir": cfg.Local.TemplatesDir,
					"catalog_file":  cfg.Local.CatalogFile,
					"output_dir":    c.OutputRoot(),
				},
			})
		}
	}

	return entries
}
