package voice

// RenderBlock advances the mix cursor by blockFrames and writes the
// resulting interleaved samples into out (must be exactly
// blockFrames*channels long). currentMixFrame is the absolute frame
// position at the start of this block.
//
// Per spec.md §4.6: for every voice whose start deadline has arrived,
// pull frames from its stream into its bus's accumulator (silence for any
// leading portion before the deadline within this block); then propagate
// each bus's accumulator up through parent gains (mixbus.Tree.PostOrder,
// children before parents) into out. out is added to, never zeroed first —
// the caller owns whatever is already in it.
func (p *Pool) RenderBlock(currentMixFrame int64, blockFrames int, out []float32) {
	ch := p.channels

	live := p.voices[:0]
	for _, v := range p.voices {
		if v.done {
			continue
		}
		if v.StartDeadline >= currentMixFrame+int64(blockFrames) {
			// Hasn't started yet within this block at all.
			live = append(live, v)
			continue
		}

		accum := p.accumulatorFor(v.BusName, blockFrames)

		startOffset := int64(0)
		if v.StartDeadline > currentMixFrame {
			startOffset = v.StartDeadline - currentMixFrame
		}

		framesToRead := blockFrames - int(startOffset)
		need := framesToRead * ch
		if cap(p.scratch) < need {
			p.scratch = make([]float32, need)
		}
		scratch := p.scratch[:need]
		n, err := v.Stream.Read(scratch)
		framesRead := n / ch

		for f := 0; f < framesRead; f++ {
			destFrame := int(startOffset) + f
			gain := float32(v.effectiveGain(currentMixFrame + int64(destFrame)))
			for c := 0; c < ch; c++ {
				accum[destFrame*ch+c] += scratch[f*ch+c] * gain
			}
		}

		v.position += int64(framesRead)
		if err != nil || framesRead < framesToRead {
			v.done = true
			if p.OnDone != nil {
				p.OnDone(v, currentMixFrame+int64(blockFrames))
			}
			continue
		}

		live = append(live, v)
	}
	p.voices = live

	for _, bus := range p.buses.PostOrder() {
		buf := p.accum[bus.Name]
		if buf == nil {
			continue
		}

		gain := float32(bus.OwnGain())
		if bus.Parent == nil {
			for i, s := range buf {
				out[i] += s * gain
			}
			continue
		}

		parentBuf := p.accumulatorFor(bus.Parent.Name, blockFrames)
		for i, s := range buf {
			parentBuf[i] += s * gain
		}
	}

	for name := range p.accum {
		if _, ok := p.busAlive(name); !ok {
			delete(p.accum, name)
			continue
		}
		clear(p.accum[name])
	}
}

func (p *Pool) busAlive(name string) (struct{}, bool) {
	_, ok := p.buses.Get(name)
	return struct{}{}, ok
}
