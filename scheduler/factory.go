package scheduler

import "fmt"

// VariantKind names the six solver families a pipeline can select between
// (spec.md §4.C). Kept independent of api.SchedulerType; pipeline maps one
// to the other so this package never imports api.
type VariantKind int

const (
	VariantLMS VariantKind = iota
	VariantEuler
	VariantEulerAncestral
	VariantDDPM
	VariantDDIM
	VariantKDPM2
)

func (k VariantKind) String() string {
	switch k {
	case VariantLMS:
		return "lms"
	case VariantEuler:
		return "euler"
	case VariantEulerAncestral:
		return "euler_ancestral"
	case VariantDDPM:
		return "ddpm"
	case VariantDDIM:
		return "ddim"
	case VariantKDPM2:
		return "kdpm2"
	default:
		return "unknown"
	}
}

// New builds the requested scheduler variant. seed only matters for variants
// with a stochastic step (DDPM, EulerAncestral); deterministic variants
// ignore it.
func New(kind VariantKind, cfg Config, seed uint64) (Scheduler, error) {
	switch kind {
	case VariantLMS:
		return NewLMS(cfg), nil
	case VariantEuler:
		return NewEuler(cfg), nil
	case VariantEulerAncestral:
		return NewEulerAncestral(cfg, seed), nil
	case VariantDDPM:
		return NewDDPM(cfg, seed), nil
	case VariantDDIM:
		return NewDDIM(cfg), nil
	case VariantKDPM2:
		return NewKDPM2(cfg), nil
	default:
		return nil, fmt.Errorf("scheduler: unsupported variant %d", int(kind))
	}
}
