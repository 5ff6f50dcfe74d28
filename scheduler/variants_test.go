package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coretensor/diffuse/tensor"
)

// runVariant drives a scheduler through a small denoising loop with a
// deterministic fake noise predictor, exercising the full Scheduler
// interface the way a diffuser would.
func runVariant(t *testing.T, s Scheduler, steps int) {
	t.Helper()
	s.SetTimesteps(steps, 0)
	timesteps := s.Timesteps()
	require.NotEmpty(t, timesteps)

	shape := []int{1, 4, 8, 8}
	latent := s.CreateRandomSample(42, shape, s.InitNoiseSigma())
	require.Equal(t, shape, latent.Shape)

	for _, ts := range timesteps {
		scaled := s.ScaleInput(latent, ts)
		require.Equal(t, len(latent.Data), len(scaled.Data))

		noisePred := tensor.MultiplyScalar(scaled, 0.01)
		result, err := s.Step(noisePred, ts, latent)
		require.NoError(t, err)
		require.NotNil(t, result.PrevSample)
		require.Equal(t, len(latent.Data), len(result.PrevSample.Data))
		latent = result.PrevSample
	}
}

func TestDDPMFullLoop(t *testing.T) {
	cfg := DefaultConfig()
	runVariant(t, NewDDPM(cfg, 7), 10)
}

func TestDDIMFullLoop(t *testing.T) {
	cfg := DefaultConfig()
	runVariant(t, NewDDIM(cfg), 10)
}

func TestEulerFullLoop(t *testing.T) {
	cfg := DefaultConfig()
	runVariant(t, NewEuler(cfg), 12)
}

func TestEulerAncestralFullLoop(t *testing.T) {
	cfg := DefaultConfig()
	runVariant(t, NewEulerAncestral(cfg, 3), 12)
}

func TestLMSFullLoop(t *testing.T) {
	cfg := DefaultConfig()
	runVariant(t, NewLMS(cfg), 15)
}

func TestKDPM2FullLoop(t *testing.T) {
	cfg := DefaultConfig()
	s := NewKDPM2(cfg)
	s.SetTimesteps(8, 0)
	timesteps := s.Timesteps()
	// Interleaved schedule: N real steps + (N-1) midpoint evaluations.
	require.Len(t, timesteps, 2*8-1)

	shape := []int{1, 4, 4, 4}
	latent := s.CreateRandomSample(11, shape, s.InitNoiseSigma())
	for _, ts := range timesteps {
		scaled := s.ScaleInput(latent, ts)
		noisePred := tensor.MultiplyScalar(scaled, 0.01)
		result, err := s.Step(noisePred, ts, latent)
		require.NoError(t, err)
		latent = result.PrevSample
	}
}

func TestFactoryBuildsAllVariants(t *testing.T) {
	cfg := DefaultConfig()
	kinds := []VariantKind{VariantLMS, VariantEuler, VariantEulerAncestral, VariantDDPM, VariantDDIM, VariantKDPM2}
	for _, k := range kinds {
		s, err := New(k, cfg, 1)
		require.NoError(t, err)
		require.NotNil(t, s)
	}
}

func TestFactoryRejectsUnknownVariant(t *testing.T) {
	_, err := New(VariantKind(99), DefaultConfig(), 0)
	require.Error(t, err)
}

func TestAddNoiseReproducesShape(t *testing.T) {
	cfg := DefaultConfig()
	s := NewDDIM(cfg)
	s.SetTimesteps(10, 0)
	shape := []int{1, 4, 4, 4}
	clean := tensor.RandomNormal(1, shape...)
	noise := tensor.RandomNormal(2, shape...)
	noised, err := s.AddNoise(clean, noise, s.Timesteps()[0])
	require.NoError(t, err)
	require.Equal(t, shape, noised.Shape)
}
