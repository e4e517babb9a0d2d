package vocoder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/example/go-wavevoc/internal/runtime/tensor"
)

// GenerateOptions controls the sampling loop.
type GenerateOptions struct {
	// Temperature scales the logits before sampling. Values <= 0 are
	// treated as 1.
	Temperature float64
}

// ctxCheckInterval is how often the generation loop polls for cancellation.
const ctxCheckInterval = 1024

// layerState holds the ring buffer of recent layer inputs feeding one
// dilated convolution. Capacity covers the dilated kernel span; positions
// before the sequence start read as zero, matching the left zero padding of
// the whole-utterance pass.
type layerState struct {
	ring [][]float32 // span slices of [resChannels], indexed by time mod span
	span int
}

func newLayerState(layer *gatedLayer, resCh int) *layerState {
	span := (layer.dilTanh.k-1)*int(layer.dilation) + 1

	ring := make([][]float32, span)
	for i := range ring {
		ring[i] = make([]float32, resCh)
	}

	return &layerState{ring: ring, span: span}
}

func (s *layerState) push(t int, v []float32) {
	copy(s.ring[t%s.span], v)
}

// at returns the stored input at time tm, or nil for tm < 0 (zero padding).
func (s *layerState) at(tm int) []float32 {
	if tm < 0 {
		return nil
	}

	return s.ring[tm%s.span]
}

// Generator runs the model one sample at a time, reproducing the
// whole-utterance Forward pass logits exactly but with constant work per
// step.
type Generator struct {
	m       *Model
	classes []int // class ring for the causal front conv
	layers  []*layerState

	cur     []float32
	next    []float32
	ts      []float32
	ss      []float32
	z       []float32
	skipAcc []float32
	skipTmp []float32
	postTmp []float32
}

// NewGenerator allocates generation state for the model. State starts at
// time zero; a Generator must not be reused across utterances.
func (m *Model) NewGenerator() *Generator {
	resCh := int(m.cfg.ResChannels)
	skipCh := int(m.cfg.SkipChannels)

	layers := make([]*layerState, len(m.layers))
	for i, layer := range m.layers {
		layers[i] = newLayerState(layer, resCh)
	}

	return &Generator{
		m:       m,
		classes: make([]int, m.causal.conv.k),
		layers:  layers,
		cur:     make([]float32, resCh),
		next:    make([]float32, resCh),
		ts:      make([]float32, resCh),
		ss:      make([]float32, resCh),
		z:       make([]float32, resCh),
		skipAcc: make([]float32, skipCh),
		skipTmp: make([]float32, skipCh),
		postTmp: make([]float32, skipCh),
	}
}

// SetClass records the input sample class at time t. It must be called
// before Step(t, ...). The class ring only retains the most recent
// KernelSize entries, which is exactly what the front causal conv reads.
func (g *Generator) SetClass(t, class int) {
	g.classes[t%len(g.classes)] = class
}

// Step computes the logits for sample t+1 given the classes recorded through
// time t and the auxiliary feature frame at time t. logits must have length
// Config().Quantize. Steps must be taken in order from t = 0.
func (g *Generator) Step(t int, auxFrame, logits []float32) {
	m := g.m

	m.causal.stepInto(g.cur, t, func(tm int) int {
		return g.classes[tm%len(g.classes)]
	})

	for i, layer := range m.layers {
		state := g.layers[i]
		state.push(t, g.cur)

		// 1x1 auxiliary conditioning plus the dilated conv bias.
		layer.auxTanh.step1x1Into(g.ts, auxFrame)
		layer.auxSigmoid.step1x1Into(g.ss, auxFrame)
		addInPlace(g.ts, layer.dilTanh.biasV)
		addInPlace(g.ss, layer.dilSigmoid.biasV)

		k := layer.dilTanh.k
		d := int(layer.dilation)

		for kx := range k {
			in := state.at(t - (k-1-kx)*d)
			if in == nil {
				continue
			}

			layer.dilTanh.stepTapInto(g.ts, kx, in)
			layer.dilSigmoid.stepTapInto(g.ss, kx, in)
		}

		tanhInPlace(g.ts)
		sigmoidInPlace(g.ss)

		for o := range g.z {
			g.z[o] = g.ts[o] * g.ss[o]
		}

		layer.skip.step1x1Into(g.skipTmp, g.z)
		if i == 0 {
			copy(g.skipAcc, g.skipTmp)
		} else {
			addInPlace(g.skipAcc, g.skipTmp)
		}

		layer.res.step1x1Into(g.next, g.z)
		addInPlace(g.next, g.cur)
		g.cur, g.next = g.next, g.cur
	}

	reluInPlace(g.skipAcc)
	m.post1.step1x1Into(g.postTmp, g.skipAcc)
	reluInPlace(g.postTmp)
	m.post2.step1x1Into(logits, g.postTmp)
}

// Generate synthesizes a waveform from auxiliary features [T, aux]. The
// first input sample is seeded with the mu-law class of silence and T-1
// samples are produced, one per remaining feature frame. progress, if
// non-nil, is called once per generated sample.
func (m *Model) Generate(ctx context.Context, feats *tensor.Tensor, rng *rand.Rand, opts GenerateOptions, progress func()) ([]float32, error) {
	if m == nil {
		return nil, errors.New("vocoder: model is nil")
	}

	if rng == nil {
		return nil, errors.New("vocoder: generate requires a random source")
	}

	shape := feats.Shape()
	if len(shape) != 2 || shape[1] != m.cfg.Aux {
		return nil, fmt.Errorf("vocoder: feature shape %v does not match [T, %d]", shape, m.cfg.Aux)
	}

	total := int(shape[0])
	if total < 2 {
		return nil, fmt.Errorf("vocoder: need at least 2 feature frames, got %d", total)
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = 1
	}

	quantize := int(m.cfg.Quantize)
	aux := int(m.cfg.Aux)
	featData := feats.RawData()

	g := m.NewGenerator()
	logits := make([]float32, quantize)

	classes := make([]int, total)
	classes[0] = EncodeMuLaw(0, quantize)

	for t := 0; t < total-1; t++ {
		if t%ctxCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		g.SetClass(t, classes[t])
		g.Step(t, featData[t*aux:(t+1)*aux], logits)

		if temperature != 1 {
			inv := float32(1 / temperature)
			for i := range logits {
				logits[i] *= inv
			}
		}

		if err := tensor.SoftmaxVec(logits); err != nil {
			return nil, fmt.Errorf("vocoder: sample %d: %w", t, err)
		}

		classes[t+1] = sampleIndex(logits, rng)

		if progress != nil {
			progress()
		}
	}

	return DecodeMuLawSlice(classes[1:], quantize), nil
}

// sampleIndex draws an index from a probability vector.
func sampleIndex(probs []float32, rng *rand.Rand) int {
	u := rng.Float64()

	var cum float64
	for i, p := range probs {
		cum += float64(p)
		if u < cum {
			return i
		}
	}

	return len(probs) - 1
}
