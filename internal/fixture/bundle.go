package fixture

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"text/template"
)

// Bundle is a loaded fixture ready to be built.
type Bundle struct {
	Manifest *Manifest
	// Dockerfile is the template as stored in the fixture.
	Dockerfile string
	// Context is the tar build context with the rendered Dockerfile.
	Context []byte
}

// dockerfileData is the template data a fixture Dockerfile can reference,
// e.g. {{.FileRoot}}.
type dockerfileData struct {
	FileRoot     string
	FileRootHost string
	Image        string
	Port         int
}

// Load reads src, parses its manifest and renders its Dockerfile.
func Load(ctx context.Context, src Source) (*Bundle, error) {
	files, err := src.Files(ctx)
	if err != nil {
		return nil, err
	}

	m, err := parseManifest(files)
	if err != nil {
		return nil, err
	}

	raw, ok := files["Dockerfile"]
	if !ok {
		return nil, ErrDockerfileNotFound
	}
	rendered, err := renderDockerfile(string(raw), m)
	if err != nil {
		return nil, err
	}
	files["Dockerfile"] = rendered

	buildContext, err := tarball(files)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", src.Name(), err)
	}
	return &Bundle{Manifest: m, Dockerfile: string(raw), Context: buildContext}, nil
}

func renderDockerfile(raw string, m *Manifest) ([]byte, error) {
	tmpl, err := template.New("Dockerfile").Option("missingkey=error").Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: Dockerfile: %v", ErrManifestInvalid, err)
	}
	data := dockerfileData{FileRoot: m.FileRoot, FileRootHost: m.FileRootHost, Image: m.Image}
	if m.Port != nil {
		data.Port = *m.Port
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("%w: Dockerfile: %v", ErrManifestInvalid, err)
	}
	return buf.Bytes(), nil
}

func tarball(files map[string][]byte) ([]byte, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, name := range names {
		if strings.HasPrefix(name, "../") {
			return nil, fmt.Errorf("path %q escapes fixture root", name)
		}
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(files[name]))}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
