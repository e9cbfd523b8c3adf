package gosf2synth

// voicePool is a fixed set of voices. The first activeCount entries of
// voices are sounding; the rest are free.
type voicePool struct {
	voices      []*Voice
	activeCount int
	sequence    uint64
}

func newVoicePool(s Settings) *voicePool {
	p := &voicePool{voices: make([]*Voice, s.MaximumPolyphony)}
	for i := range p.voices {
		p.voices[i] = newVoice(s)
	}
	return p
}

// active returns the sounding voices.
func (p *voicePool) active() []*Voice {
	return p.voices[:p.activeCount]
}

// request returns a voice to start. A voice of the same channel and
// exclusive class started by another note is reused first, then a free
// slot, then the voice with the lowest priority is stolen (oldest first on
// ties). stolen reports that the returned voice was sounding.
func (p *voicePool) request(channel, exclusiveClass int, noteID uint64) (v *Voice, stolen bool) {
	if exclusiveClass != 0 {
		for _, v := range p.active() {
			if v.exclusiveClass == exclusiveClass && v.channel == channel && v.noteID != noteID {
				p.stamp(v)
				return v, true
			}
		}
	}

	if p.activeCount < len(p.voices) {
		v = p.voices[p.activeCount]
		p.activeCount++
		p.stamp(v)
		return v, false
	}

	var candidate *Voice
	for _, v := range p.active() {
		if candidate == nil ||
			v.priority() < candidate.priority() ||
			(v.priority() == candidate.priority() && v.sequence < candidate.sequence) {
			candidate = v
		}
	}
	voiceDebug("Stealing voice: channel=%d key=%d stage=%s priority=%.3f",
		candidate.channel, candidate.key, candidate.Stage(), candidate.priority())
	p.stamp(candidate)
	return candidate, true
}

func (p *voicePool) stamp(v *Voice) {
	p.sequence++
	v.sequence = p.sequence
}

// process renders a block on every active voice and compacts the pool,
// calling done for each voice that finished.
func (p *voicePool) process(done func(*Voice)) {
	i := 0
	for i < p.activeCount {
		v := p.voices[i]
		if v.process() {
			i++
			continue
		}
		if done != nil {
			done(v)
		}
		last := p.activeCount - 1
		p.voices[i], p.voices[last] = p.voices[last], p.voices[i]
		p.activeCount--
	}
}

// noteOff releases the voices of a channel and key.
func (p *voicePool) noteOff(channel, key int) {
	for _, v := range p.active() {
		if v.channel == channel && v.noteKey == key {
			v.release()
		}
	}
}

// releaseHeld releases the voices of a channel that were waiting for the
// hold pedal.
func (p *voicePool) releaseHeld(channel int) {
	for _, v := range p.active() {
		if v.channel == channel && v.state == voiceReleaseRequested {
			v.releaseNow()
		}
	}
}

// noteOffAll releases, or with immediate removes, every voice on a channel.
// channel < 0 matches all channels.
func (p *voicePool) noteOffAll(channel int, immediate bool, removed func(*Voice)) {
	if !immediate {
		for _, v := range p.active() {
			if channel < 0 || v.channel == channel {
				v.releaseNow()
			}
		}
		return
	}

	i := 0
	for i < p.activeCount {
		v := p.voices[i]
		if channel >= 0 && v.channel != channel {
			i++
			continue
		}
		if removed != nil {
			removed(v)
		}
		v.kill()
		last := p.activeCount - 1
		p.voices[i], p.voices[last] = p.voices[last], p.voices[i]
		p.activeCount--
	}
}

func (p *voicePool) clear() {
	for _, v := range p.active() {
		v.kill()
	}
	p.activeCount = 0
}
