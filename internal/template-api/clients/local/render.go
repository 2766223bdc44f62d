package local

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nikolalohinski/gonja"
	"github.com/nikolalohinski/gonja/config"
)

// renderEnv fails on undefined names and attributes; "| default(...)" still applies.
var renderEnv = gonja.NewEnvironment(strictConfig(), gonja.DefaultLoader)

func strictConfig() *config.Config {
	cfg := config.NewConfig()
	cfg.StrictUndefined = true
	return cfg
}

var templateExtensions = []string{".j2", ".jinja", ".jinja2", ".tmpl"}

// renderContext exposes parameters as values.<name> and as top-level names.
func renderContext(values map[string]interface{}) gonja.Context {
	ctx := gonja.Context{}
	for k, v := range values {
		ctx[k] = v
	}
	if values == nil {
		values = map[string]interface{}{}
	}
	ctx["values"] = values
	return ctx
}

func renderString(source string, ctx gonja.Context) (string, error) {
	tpl, err := renderEnv.FromString(source)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}
	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return out, nil
}

// renderName renders a file or directory name only when it carries delimiters.
func renderName(name string, ctx gonja.Context) (string, error) {
	if !strings.Contains(name, "{") || !strings.Contains(name, "}") {
		return name, nil
	}
	rendered, err := renderString(name, ctx)
	if err != nil {
		return "", fmt.Errorf("rendering name %q: %w", name, err)
	}
	return rendered, nil
}

func templateExtension(name string) (string, bool) {
	for _, ext := range templateExtensions {
		if strings.HasSuffix(name, ext) {
			return ext, true
		}
	}
	return "", false
}

// renderTree writes the skeleton at src into dst. Files with a template
// extension are rendered and lose the extension; everything else is copied as is.
func renderTree(src, dst string, values map[string]interface{}) error {
	ctx := renderContext(values)

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0o755)
		}

		parts := strings.Split(rel, string(os.PathSeparator))
		for i, part := range parts {
			if parts[i], err = renderName(part, ctx); err != nil {
				return err
			}
		}
		target := filepath.Join(append([]string{dst}, parts...)...)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if ext, ok := templateExtension(d.Name()); ok {
			return renderFile(path, strings.TrimSuffix(target, ext), info.Mode().Perm(), ctx)
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func renderFile(src, dst string, mode fs.FileMode, ctx gonja.Context) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	rendered, err := renderString(string(content), ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", src, err)
	}
	if err := os.WriteFile(dst, []byte(rendered), mode); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
