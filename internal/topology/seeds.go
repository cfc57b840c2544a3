package topology

import (
	"github.com/matterbridge-go/matterbridge/internal/matteradapter"
	"github.com/matterbridge-go/matterbridge/internal/model"
)

// SeedSource resolves the initial (port, passcode, discriminator)
// values in precedence order: CLI flags, the pairing file, the
// persisted store, then randomly generated values. Each field is
// resolved independently — a CLI port with no CLI passcode still
// falls through to the pairing file for the passcode.
type SeedSource struct {
	CLIPort          int
	CLIPasscode      uint32
	CLIDiscriminator uint16

	PairingPasscode      *uint32
	PairingDiscriminator *uint16

	Persisted model.ServerNodeSeed

	Adapter matteradapter.Adapter
}

// Resolve produces the starting seed. Every server node creation
// consumes the current seed and post-increments each field (see
// Allocator below) — Resolve only determines the *first* value.
func (s SeedSource) Resolve() (model.ServerNodeSeed, error) {
	seed := model.ServerNodeSeed{
		Port:          model.DefaultPort,
		Passcode:      s.Persisted.Passcode,
		Discriminator: s.Persisted.Discriminator,
	}

	if s.Persisted.Port != 0 {
		seed.Port = s.Persisted.Port
	}

	if s.PairingPasscode != nil {
		seed.Passcode = *s.PairingPasscode
	}
	if s.PairingDiscriminator != nil {
		seed.Discriminator = *s.PairingDiscriminator
	}

	if s.CLIPort != 0 {
		seed.Port = s.CLIPort
	}
	if s.CLIPasscode != 0 {
		seed.Passcode = s.CLIPasscode
	}
	if s.CLIDiscriminator != 0 {
		seed.Discriminator = s.CLIDiscriminator
	}

	if seed.Passcode == 0 {
		p, err := s.Adapter.RandomPasscode()
		if err != nil {
			return model.ServerNodeSeed{}, err
		}
		seed.Passcode = p
	}
	if seed.Discriminator == 0 {
		d, err := s.Adapter.RandomDiscriminator()
		if err != nil {
			return model.ServerNodeSeed{}, err
		}
		seed.Discriminator = d
	}

	return seed, nil
}

// Allocator hands out successive seeds, guaranteeing port, passcode,
// and discriminator are never reused within one supervisor lifetime
// (spec.md §3 invariants, §8 quantified invariant).
type Allocator struct {
	current model.ServerNodeSeed
	used    map[model.ServerNodeSeed]bool
}

// NewAllocator starts allocation from start.
func NewAllocator(start model.ServerNodeSeed) *Allocator {
	return &Allocator{current: start, used: make(map[model.ServerNodeSeed]bool)}
}

// Next returns the current seed and advances port, passcode, and
// discriminator for the following call.
func (a *Allocator) Next() model.ServerNodeSeed {
	seed := a.current
	a.used[seed] = true

	a.current.Port++
	a.current.Passcode++
	if a.current.Passcode > 99999998 {
		a.current.Passcode = 1
	}
	a.current.Discriminator++
	if a.current.Discriminator >= 4096 {
		a.current.Discriminator = 0
	}

	return seed
}

// Current returns the seed that would be handed out by the next call
// to Next, for persistence between restarts.
func (a *Allocator) Current() model.ServerNodeSeed { return a.current }
