package tensor

import (
	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// RandomNormal draws shape-many standard-normal samples from a seeded
// source. The scheduler family uses this for create_random_sample and for
// per-step ancestral noise; using a dedicated seeded rand.Source (rather
// than the global generator) is what makes generation reproducible for a
// fixed seed (spec.md §8 invariant 2).
func RandomNormal(seed uint64, shape ...int) *Tensor {
	src := rand.NewSource(seed)
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	data := make([]float32, numel(shape))
	for i := range data {
		data[i] = float32(dist.Rand())
	}
	return &Tensor{Data: data, Shape: append([]int(nil), shape...)}
}

// RandomSeed returns a non-zero random u64 suitable for replacing
// SchedulerOptions.Seed == 0 at run start (spec.md §4.F).
func RandomSeed() uint64 {
	for {
		v := rand.Uint64()
		if v != 0 {
			return v
		}
	}
}
