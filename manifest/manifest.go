// Package manifest resolves a model name to the content-addressed set of
// config and tensor blobs the pipeline loads sub-models from, following the
// same manifest/blob-store convention this codebase's model registry uses
// for other model families (a SUPPLEMENTED FEATURE recovering the
// distillation's dropped model-resolution machinery).
package manifest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Layer is one content-addressed entry in a manifest: either a JSON config
// file or a tensor blob, keyed by its digest.
type Layer struct {
	MediaType string `json:"mediaType"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
	Name      string `json:"name,omitempty"`
}

const (
	MediaTypeConfig = "application/vnd.diffuse.image.json"
	MediaTypeTensor = "application/vnd.diffuse.image.tensor"
)

// Manifest is the top-level content-addressed model description: one config
// layer plus a flat list of tensor/config layers, each named "component/name"
// (e.g. "unet/config.json", "text_encoder/model.safetensors").
type Manifest struct {
	SchemaVersion int     `json:"schemaVersion"`
	MediaType     string  `json:"mediaType"`
	Config        Layer   `json:"config"`
	Layers        []Layer `json:"layers"`
}

// Resolved is a parsed manifest bound to the blob directory its digests
// resolve against.
type Resolved struct {
	Manifest *Manifest
	BlobDir  string
}

// DefaultBlobDir returns the default blob storage directory.
func DefaultBlobDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".diffuse", "models", "blobs")
}

// DefaultManifestDir returns the default manifest storage directory.
func DefaultManifestDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".diffuse", "models", "manifests")
}

// Load resolves and parses the manifest for modelName, of the form
// "name", "name:tag", or "namespace/name:tag".
func Load(modelName string) (*Resolved, error) {
	path := resolvePath(modelName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	return &Resolved{Manifest: &m, BlobDir: DefaultBlobDir()}, nil
}

func resolvePath(modelName string) string {
	namespace, name, tag := "library", modelName, "latest"
	if idx := strings.LastIndex(name, ":"); idx != -1 {
		tag = name[idx+1:]
		name = name[:idx]
	}
	if parts := strings.Split(name, "/"); len(parts) == 2 {
		namespace, name = parts[0], parts[1]
	}
	return filepath.Join(DefaultManifestDir(), namespace, name, tag)
}

// BlobPath maps a digest ("sha256:abcd...") to its on-disk blob path.
func (r *Resolved) BlobPath(digest string) string {
	return filepath.Join(r.BlobDir, strings.Replace(digest, ":", "-", 1))
}

// ComponentLayers returns every tensor layer whose name is prefixed
// "component/", e.g. ComponentLayers("unet") for every UNet weight blob.
func (r *Resolved) ComponentLayers(component string) []Layer {
	prefix := component + "/"
	var out []Layer
	for _, l := range r.Manifest.Layers {
		if l.MediaType == MediaTypeTensor && strings.HasPrefix(l.Name, prefix) {
			out = append(out, l)
		}
	}
	return out
}

// ComponentConfig returns the resolved on-disk path to a component's ONNX
// graph file, i.e. the config layer named "component/model.onnx". Pipeline
// setup uses this to build submodel.Handle instances without the caller
// ever touching a digest directly.
func (r *Resolved) ComponentConfig(component, filename string) (string, error) {
	name := component + "/" + filename
	for _, l := range r.Manifest.Layers {
		if l.Name == name {
			return r.BlobPath(l.Digest), nil
		}
	}
	return "", fmt.Errorf("manifest: layer %q not found", name)
}

// ReadConfig reads a named JSON config layer's raw bytes.
func (r *Resolved) ReadConfig(path string) ([]byte, error) {
	for _, l := range r.Manifest.Layers {
		if l.MediaType == MediaTypeConfig && l.Name == path {
			return os.ReadFile(r.BlobPath(l.Digest))
		}
	}
	return nil, fmt.Errorf("manifest: config %q not found", path)
}

// ReadConfigJSON reads and unmarshals a named JSON config layer.
func (r *Resolved) ReadConfigJSON(path string, v any) error {
	data, err := r.ReadConfig(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// OpenBlob opens a tensor blob for streaming reads.
func (r *Resolved) OpenBlob(digest string) (io.ReadCloser, error) {
	return os.Open(r.BlobPath(digest))
}

// HasComponent reports whether the manifest carries any tensor layer for
// the named component ("unet", "text_encoder", "vae", "controlnet", ...).
func (r *Resolved) HasComponent(component string) bool {
	return len(r.ComponentLayers(component)) > 0
}

// ClassName reads model_index.json's "_class_name" field, the pipeline
// architecture identifier used to select a diffuser/VRAM estimate.
func (r *Resolved) ClassName() (string, error) {
	var index struct {
		ClassName string `json:"_class_name"`
	}
	if err := r.ReadConfigJSON("model_index.json", &index); err != nil {
		return "", err
	}
	return index.ClassName, nil
}
