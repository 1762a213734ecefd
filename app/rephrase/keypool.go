package rephrase

import (
	"sync"
	"time"
)

const maxCooldown = 15 * time.Minute

type slot struct {
	key           string
	state         SlotState
	cooldownUntil time.Time
	failures      int
}

// KeyPool holds the credential slots for the rephrasing backend. All
// slot-state transitions go through the mutex; concurrent rewrite calls
// never pick the same cooling-down slot as available.
type KeyPool struct {
	mu           sync.Mutex
	slots        []slot
	cursor       int
	baseCooldown time.Duration
	now          func() time.Time
}

func NewKeyPool(keys []string, baseCooldown time.Duration) *KeyPool {
	slots := make([]slot, 0, len(keys))
	for _, key := range keys {
		slots = append(slots, slot{key: key, state: SlotAvailable})
	}

	return &KeyPool{
		slots:        slots,
		baseCooldown: baseCooldown,
		now:          time.Now,
	}
}

// Acquire returns the index and key of the next available slot, bringing
// cooled-down slots back to available first. The cursor rotates so load
// spreads across keys.
func (p *KeyPool) Acquire() (int, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for offset := 0; offset < len(p.slots); offset++ {
		idx := (p.cursor + offset) % len(p.slots)
		s := &p.slots[idx]

		if s.state == SlotCoolingDown && !s.cooldownUntil.After(now) {
			s.state = SlotAvailable
		}

		if s.state == SlotAvailable {
			p.cursor = (idx + 1) % len(p.slots)
			return idx, s.key, nil
		}
	}

	return 0, "", ErrKeysExhausted
}

// ReportSuccess resets the slot's consecutive failure count.
func (p *KeyPool) ReportSuccess(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &p.slots[idx]
	s.failures = 0
	s.state = SlotAvailable
}

// ReportFailure puts the slot into cooldown with an exponential window:
// the base cooldown doubles per consecutive failure, capped.
func (p *KeyPool) ReportFailure(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := &p.slots[idx]
	if s.state == SlotExhausted {
		return
	}

	s.failures++
	cooldown := p.baseCooldown
	for i := 1; i < s.failures && cooldown < maxCooldown; i++ {
		cooldown *= 2
	}
	if cooldown > maxCooldown {
		cooldown = maxCooldown
	}

	s.state = SlotCoolingDown
	s.cooldownUntil = p.now().Add(cooldown)
}

// Exhaust permanently removes the slot from rotation (revoked or
// unauthorized key).
func (p *KeyPool) Exhaust(idx int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.slots[idx].state = SlotExhausted
}

func (p *KeyPool) Size() int {
	return len(p.slots)
}

// States returns a per-state slot count for the stats endpoint.
func (p *KeyPool) States() map[SlotState]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	counts := make(map[SlotState]int)
	for _, s := range p.slots {
		state := s.state
		if state == SlotCoolingDown && !s.cooldownUntil.After(now) {
			state = SlotAvailable
		}
		counts[state]++
	}
	return counts
}
