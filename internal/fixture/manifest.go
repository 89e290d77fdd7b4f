package fixture

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/runnable/runnable-api/internal/model"
)

var (
	ErrManifestNotFound   = errors.New("runnable.json not found")
	ErrManifestInvalid    = errors.New("runnable.json is not valid")
	ErrDockerfileNotFound = errors.New("dockerfile not found")
)

// ManifestFile is a file entry as written in a fixture manifest.
type ManifestFile struct {
	Name    string `json:"name" yaml:"name"`
	Path    string `json:"path" yaml:"path"`
	Dir     bool   `json:"dir" yaml:"dir"`
	Ignore  bool   `json:"ignore" yaml:"ignore"`
	Default bool   `json:"default" yaml:"default"`
	Content string `json:"content" yaml:"content"`
}

// Manifest describes a runnable fixture (runnable.json or runnable.yaml).
type Manifest struct {
	Name         string         `json:"name" yaml:"name"`
	Description  string         `json:"description" yaml:"description"`
	Image        string         `json:"image" yaml:"image"`
	FileRoot     string         `json:"file_root" yaml:"file_root"`
	FileRootHost string         `json:"file_root_host" yaml:"file_root_host"`
	Cmd          string         `json:"cmd" yaml:"cmd"`
	BuildCmd     string         `json:"build_cmd" yaml:"build_cmd"`
	StartCmd     string         `json:"start_cmd" yaml:"start_cmd"`
	ServiceCmds  string         `json:"service_cmds" yaml:"service_cmds"`
	Port         *int           `json:"port" yaml:"port"`
	OutputFormat string         `json:"output_format" yaml:"output_format"`
	Tags         []string       `json:"tags" yaml:"tags"`
	Files        []ManifestFile `json:"files" yaml:"files"`
}

func parseManifest(files map[string][]byte) (*Manifest, error) {
	var m Manifest
	if raw, ok := files["runnable.json"]; ok {
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
		}
	} else if raw, ok := files["runnable.yaml"]; ok {
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrManifestInvalid, err)
		}
	} else {
		return nil, ErrManifestNotFound
	}
	if m.Name == "" {
		return nil, fmt.Errorf("%w: missing name", ErrManifestInvalid)
	}
	if m.FileRoot == "" {
		m.FileRoot = "/root"
	}
	if m.FileRootHost == "" {
		m.FileRootHost = "./src"
	}
	if m.StartCmd == "" {
		m.StartCmd = "date"
	}
	return &m, nil
}

// Apply copies the manifest's fields onto img. Tags are resolved by the caller.
func (m *Manifest) Apply(img *model.Image) {
	img.Name = m.Name
	img.Description = m.Description
	img.Image = m.Image
	img.FileRoot = m.FileRoot
	img.FileRootHost = m.FileRootHost
	img.Cmd = m.Cmd
	img.BuildCmd = m.BuildCmd
	img.StartCmd = m.StartCmd
	img.ServiceCmds = m.ServiceCmds
	img.Port = m.Port
	img.OutputFormat = m.OutputFormat
	img.Files = make([]model.File, 0, len(m.Files))
	for i, f := range m.Files {
		img.Files = append(img.Files, model.File{
			ID:      fmt.Sprintf("%d", i+1),
			Name:    f.Name,
			Path:    f.Path,
			Dir:     f.Dir,
			Ignore:  f.Ignore,
			Default: f.Default,
			Content: f.Content,
		})
	}
}
