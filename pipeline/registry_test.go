package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/api"
	"github.com/coretensor/diffuse/manifest"
)

// writeFakeModel materializes a minimal manifest + blob store under a fresh
// $HOME so manifest.Load resolves modelName against it.
func writeFakeModel(t *testing.T, modelName string, idx modelIndex) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)

	blobDir := filepath.Join(home, ".diffuse", "models", "blobs")
	manifestDir := filepath.Join(home, ".diffuse", "models", "manifests", "library", modelName, "latest")
	require.NoError(t, os.MkdirAll(blobDir, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Dir(manifestDir), 0o755))

	indexData, err := marshalIndex(idx)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(blobDir, "sha256-index"), indexData, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(blobDir, "sha256-tok"), []byte(`{"model":{"vocab":{},"merges":[]}}`), 0o644))
	for _, digest := range []string{"sha256-unet", "sha256-textenc", "sha256-vaedec"} {
		require.NoError(t, os.WriteFile(filepath.Join(blobDir, digest), []byte("stub"), 0o644))
	}

	m := manifest.Manifest{
		SchemaVersion: 1,
		Config:        manifest.Layer{MediaType: manifest.MediaTypeConfig, Digest: "sha256:index", Name: "model_index.json"},
		Layers: []manifest.Layer{
			{MediaType: manifest.MediaTypeConfig, Digest: "sha256:index", Name: "model_index.json"},
			{MediaType: manifest.MediaTypeConfig, Digest: "sha256:tok", Name: "tokenizer/tokenizer.json"},
			{MediaType: manifest.MediaTypeTensor, Digest: "sha256:unet", Name: "unet/model.onnx"},
			{MediaType: manifest.MediaTypeTensor, Digest: "sha256:textenc", Name: "text_encoder/model.onnx"},
			{MediaType: manifest.MediaTypeTensor, Digest: "sha256:vaedec", Name: "vae_decoder/model.onnx"},
		},
	}
	data, err := json.Marshal(m)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(manifestDir, data, 0o644))
}

func TestLoadModelSetReadsClassAndComponents(t *testing.T) {
	writeFakeModel(t, "test-model", modelIndex{ClassName: "StableDiffusionPipeline", SampleSize: 64, ScaleFactor: 0.18215, TokenizerLimit: 77})

	set, err := LoadModelSet("test-model")
	require.NoError(t, err)
	assert.Equal(t, PipelineStandardSD, set.PipelineType)
	assert.Contains(t, set.SupportedDiffusers, api.TextToImage)
	assert.Equal(t, float32(0.18215), set.ScaleFactor)

	_, ok := set.submodelPath("unet")
	assert.True(t, ok)
	_, ok = set.submodelPath("controlnet")
	assert.False(t, ok)
}

func TestLoadModelSetDefaultsSampleSizeAndTokenizerLimit(t *testing.T) {
	writeFakeModel(t, "bare-model", modelIndex{ClassName: "StableDiffusionPipeline"})

	set, err := LoadModelSet("bare-model")
	require.NoError(t, err)
	assert.Equal(t, 64, set.SampleSize)
	assert.Equal(t, 77, set.TokenizerLimit)
}
