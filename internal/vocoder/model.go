// Package vocoder implements a WaveNet-style autoregressive neural vocoder:
// a stack of dilated causal convolutions with gated activations conditioned
// on auxiliary acoustic features, generating mu-law quantized waveform
// samples one at a time.
package vocoder

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/example/go-wavevoc/internal/runtime/ops"
	"github.com/example/go-wavevoc/internal/runtime/tensor"
	"github.com/example/go-wavevoc/internal/safetensors"
)

// HParamsKey names the rank-1 tensor that carries the network
// hyperparameters inside a checkpoint.
const HParamsKey = "hparams"

// Config holds the WaveNet hyperparameters.
type Config struct {
	Quantize       int64 // mu-law quantization classes
	Aux            int64 // auxiliary feature dimension
	ResChannels    int64 // residual channels
	SkipChannels   int64 // skip channels
	DilationDepth  int64 // dilations 2^0 .. 2^(depth-1)
	DilationRepeat int64 // number of dilation cycles
	KernelSize     int64
}

func DefaultConfig() Config {
	return Config{
		Quantize:       256,
		Aux:            28,
		ResChannels:    512,
		SkipChannels:   256,
		DilationDepth:  10,
		DilationRepeat: 3,
		KernelSize:     2,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Quantize < 2:
		return fmt.Errorf("vocoder: quantize must be >= 2, got %d", c.Quantize)
	case c.Aux < 1:
		return fmt.Errorf("vocoder: aux dimension must be >= 1, got %d", c.Aux)
	case c.ResChannels < 1 || c.SkipChannels < 1:
		return fmt.Errorf("vocoder: channel counts must be >= 1, got res=%d skip=%d", c.ResChannels, c.SkipChannels)
	case c.DilationDepth < 1 || c.DilationRepeat < 1:
		return fmt.Errorf("vocoder: dilation depth/repeat must be >= 1, got %d/%d", c.DilationDepth, c.DilationRepeat)
	case c.DilationDepth > 30:
		return fmt.Errorf("vocoder: dilation depth %d too large", c.DilationDepth)
	case c.KernelSize < 2:
		return fmt.Errorf("vocoder: kernel size must be >= 2, got %d", c.KernelSize)
	}

	return nil
}

// Dilations returns the per-layer dilation factors: repeat cycles of
// 2^0 .. 2^(depth-1).
func (c Config) Dilations() []int64 {
	n := c.DilationDepth * c.DilationRepeat

	out := make([]int64, 0, n)
	for i := range n {
		out = append(out, int64(1)<<(i%c.DilationDepth))
	}

	return out
}

// ReceptiveField returns the number of past samples that influence one
// output sample.
func (c Config) ReceptiveField() int64 {
	var sum int64
	for _, d := range c.Dilations() {
		sum += d
	}

	return (c.KernelSize-1)*sum + c.KernelSize
}

// HParamsTensor encodes the config as the checkpoint hyperparameter tensor.
func (c Config) HParamsTensor() safetensors.Tensor {
	return safetensors.Tensor{
		Name:  HParamsKey,
		Shape: []int64{7},
		Data: []float32{
			float32(c.Quantize),
			float32(c.Aux),
			float32(c.ResChannels),
			float32(c.SkipChannels),
			float32(c.DilationDepth),
			float32(c.DilationRepeat),
			float32(c.KernelSize),
		},
	}
}

// ConfigFromStore decodes the hyperparameter tensor of an open checkpoint.
func ConfigFromStore(store *safetensors.Store) (Config, error) {
	t, err := store.TensorWithShape(HParamsKey, []int64{7})
	if err != nil {
		return Config{}, fmt.Errorf("vocoder: read hyperparameters: %w", err)
	}

	cfg := Config{
		Quantize:       int64(t.Data[0]),
		Aux:            int64(t.Data[1]),
		ResChannels:    int64(t.Data[2]),
		SkipChannels:   int64(t.Data[3]),
		DilationDepth:  int64(t.Data[4]),
		DilationRepeat: int64(t.Data[5]),
		KernelSize:     int64(t.Data[6]),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// convLayer is a bias-carrying Conv1d with both a tensor form (whole-utterance
// forward via ops.Conv1D) and a tap-packed form for the per-sample
// generation loop. Tap kx of a causal convolution with dilation d reads the
// input at time t-(K-1-kx)*d.
type convLayer struct {
	weight   *tensor.Tensor // [out, in, k]
	bias     *tensor.Tensor // [out]
	dilation int64

	taps  [][]float32 // k matrices of [out*in], row-major over out
	biasV []float32
	out   int
	in    int
	k     int
}

func loadConv(vb *VarBuilder, dilation, wantOut, wantIn, wantK int64) (*convLayer, error) {
	w, err := vb.Tensor("weight", wantOut, wantIn, wantK)
	if err != nil {
		return nil, err
	}

	b, err := vb.Tensor("bias", wantOut)
	if err != nil {
		return nil, err
	}

	c := &convLayer{
		weight:   w,
		bias:     b,
		dilation: dilation,
		biasV:    b.RawData(),
		out:      int(wantOut),
		in:       int(wantIn),
		k:        int(wantK),
	}

	// Pack per-tap [out, in] matrices so the generation loop runs contiguous
	// matrix-vector products.
	wData := w.RawData()

	c.taps = make([][]float32, c.k)
	for kx := range c.k {
		m := make([]float32, c.out*c.in)
		for o := range c.out {
			for i := range c.in {
				m[o*c.in+i] = wData[(o*c.in+i)*c.k+kx]
			}
		}

		c.taps[kx] = m
	}

	return c, nil
}

// forwardCausal runs the layer over a whole sequence with causal left padding.
func (c *convLayer) forwardCausal(x *tensor.Tensor) (*tensor.Tensor, error) {
	leftPad := (int64(c.k) - 1) * c.dilation

	return ops.Conv1DLeftPad(x, c.weight, c.bias, 1, leftPad, c.dilation, 1)
}

// forward1x1 runs a kernel-size-1 layer over a whole sequence.
func (c *convLayer) forward1x1(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Conv1D(x, c.weight, c.bias, 1, 0, 1, 1)
}

// stepTapInto accumulates tap kx applied to input vector x into y.
func (c *convLayer) stepTapInto(y []float32, kx int, x []float32) {
	m := c.taps[kx]
	for o := range c.out {
		y[o] += tensor.DotProduct(m[o*c.in:(o+1)*c.in], x)
	}
}

// step1x1Into computes y = Wx + b for a kernel-size-1 layer.
func (c *convLayer) step1x1Into(y, x []float32) {
	m := c.taps[0]
	for o := range c.out {
		y[o] = c.biasV[o] + tensor.DotProduct(m[o*c.in:(o+1)*c.in], x)
	}
}

// onehotConv is the front causal convolution over one-hot mu-law classes.
// Because the input is one-hot, each tap reduces to an embedding lookup; the
// packed layout stores, per (tap, class), the output-channel column.
type onehotConv struct {
	conv    *convLayer
	columns [][]float32 // [k*quantize] slices of [out]
}

func loadOnehotConv(vb *VarBuilder, quantize, resCh, kernel int64) (*onehotConv, error) {
	conv, err := loadConv(vb, 1, resCh, quantize, kernel)
	if err != nil {
		return nil, err
	}

	wData := conv.weight.RawData()
	out := conv.out
	q := int(quantize)
	k := conv.k

	columns := make([][]float32, k*q)
	for kx := range k {
		for class := range q {
			col := make([]float32, out)
			for o := range out {
				col[o] = wData[(o*q+class)*k+kx]
			}

			columns[kx*q+class] = col
		}
	}

	return &onehotConv{conv: conv, columns: columns}, nil
}

// stepInto computes the causal front convolution at one time step from the
// recent class history. classAt returns the class index at the given time, or
// -1 for padded positions before the sequence start.
func (e *onehotConv) stepInto(y []float32, t int, classAt func(t int) int) {
	copy(y, e.conv.biasV)

	q := len(e.columns) / e.conv.k
	for kx := range e.conv.k {
		tm := t - (e.conv.k - 1 - kx)
		if tm < 0 {
			continue
		}

		class := classAt(tm)
		if class < 0 {
			continue
		}

		col := e.columns[kx*q+class]
		for o := range y {
			y[o] += col[o]
		}
	}
}

// gatedLayer is one residual block: dilated tanh/sigmoid convolutions, 1x1
// auxiliary conditioning projections, and 1x1 skip/residual projections.
type gatedLayer struct {
	dilation   int64
	dilSigmoid *convLayer
	dilTanh    *convLayer
	auxSigmoid *convLayer
	auxTanh    *convLayer
	skip       *convLayer
	res        *convLayer
}

func loadGatedLayer(vb *VarBuilder, cfg Config, dilation int64) (*gatedLayer, error) {
	dilSigmoid, err := loadConv(vb.Path("dil_sigmoid"), dilation, cfg.ResChannels, cfg.ResChannels, cfg.KernelSize)
	if err != nil {
		return nil, err
	}

	dilTanh, err := loadConv(vb.Path("dil_tanh"), dilation, cfg.ResChannels, cfg.ResChannels, cfg.KernelSize)
	if err != nil {
		return nil, err
	}

	auxSigmoid, err := loadConv(vb.Path("aux_sigmoid"), 1, cfg.ResChannels, cfg.Aux, 1)
	if err != nil {
		return nil, err
	}

	auxTanh, err := loadConv(vb.Path("aux_tanh"), 1, cfg.ResChannels, cfg.Aux, 1)
	if err != nil {
		return nil, err
	}

	skip, err := loadConv(vb.Path("skip"), 1, cfg.SkipChannels, cfg.ResChannels, 1)
	if err != nil {
		return nil, err
	}

	res, err := loadConv(vb.Path("res"), 1, cfg.ResChannels, cfg.ResChannels, 1)
	if err != nil {
		return nil, err
	}

	return &gatedLayer{
		dilation:   dilation,
		dilSigmoid: dilSigmoid,
		dilTanh:    dilTanh,
		auxSigmoid: auxSigmoid,
		auxTanh:    auxTanh,
		skip:       skip,
		res:        res,
	}, nil
}

// Model is a loaded WaveNet vocoder.
type Model struct {
	cfg    Config
	causal *onehotConv
	layers []*gatedLayer
	post1  *convLayer
	post2  *convLayer
}

// LoadModel opens a checkpoint file, reads the hyperparameters, and builds
// the network graph.
func LoadModel(path string) (*Model, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	cfg, err := ConfigFromStore(store)
	if err != nil {
		return nil, err
	}

	return LoadModelFromStore(store, cfg)
}

// LoadModelFromStore builds the network graph from an open checkpoint.
func LoadModelFromStore(store *safetensors.Store, cfg Config) (*Model, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vb := NewVarBuilder(store)

	causal, err := loadOnehotConv(vb.Path("causal"), cfg.Quantize, cfg.ResChannels, cfg.KernelSize)
	if err != nil {
		return nil, fmt.Errorf("vocoder: load causal conv: %w", err)
	}

	dilations := cfg.Dilations()

	layers := make([]*gatedLayer, 0, len(dilations))
	for i, d := range dilations {
		layer, err := loadGatedLayer(vb.Path("layers", strconv.Itoa(i)), cfg, d)
		if err != nil {
			return nil, fmt.Errorf("vocoder: load layer %d: %w", i, err)
		}

		layers = append(layers, layer)
	}

	post1, err := loadConv(vb.Path("post", "1"), 1, cfg.SkipChannels, cfg.SkipChannels, 1)
	if err != nil {
		return nil, fmt.Errorf("vocoder: load post conv 1: %w", err)
	}

	post2, err := loadConv(vb.Path("post", "2"), 1, cfg.Quantize, cfg.SkipChannels, 1)
	if err != nil {
		return nil, fmt.Errorf("vocoder: load post conv 2: %w", err)
	}

	return &Model{
		cfg:    cfg,
		causal: causal,
		layers: layers,
		post1:  post1,
		post2:  post2,
	}, nil
}

func (m *Model) Config() Config { return m.cfg }

// Forward runs the whole-utterance teacher-forcing pass: given the input
// sample classes x[0..T-1] and aligned auxiliary features [T, aux], it
// returns logits [T, quantize] where row t is the predictive distribution of
// sample t+1.
func (m *Model) Forward(classes []int, feats *tensor.Tensor) (*tensor.Tensor, error) {
	if m == nil {
		return nil, errors.New("vocoder: model is nil")
	}

	if len(classes) == 0 {
		return nil, errors.New("vocoder: forward requires at least one input sample")
	}

	featShape := feats.Shape()
	if len(featShape) != 2 || featShape[1] != m.cfg.Aux {
		return nil, fmt.Errorf("vocoder: forward feature shape %v does not match [T, %d]", featShape, m.cfg.Aux)
	}

	if featShape[0] != int64(len(classes)) {
		return nil, fmt.Errorf("vocoder: forward has %d samples but %d feature frames", len(classes), featShape[0])
	}

	t64 := int64(len(classes))

	onehot, err := tensor.Zeros([]int64{1, m.cfg.Quantize, t64})
	if err != nil {
		return nil, err
	}

	ohData := onehot.RawData()
	for t, class := range classes {
		if class < 0 || int64(class) >= m.cfg.Quantize {
			return nil, fmt.Errorf("vocoder: sample class %d out of range [0, %d)", class, m.cfg.Quantize)
		}

		ohData[int64(class)*t64+int64(t)] = 1
	}

	// [T, aux] -> [1, aux, T]
	auxT, err := feats.Transpose(0, 1)
	if err != nil {
		return nil, err
	}

	auxT, err = auxT.Reshape([]int64{1, m.cfg.Aux, t64})
	if err != nil {
		return nil, err
	}

	x, err := m.causal.conv.forwardCausal(onehot)
	if err != nil {
		return nil, fmt.Errorf("vocoder: causal conv: %w", err)
	}

	var skipSum *tensor.Tensor

	for i, layer := range m.layers {
		ts, err := layer.dilTanh.forwardCausal(x)
		if err != nil {
			return nil, fmt.Errorf("vocoder: layer %d dil_tanh: %w", i, err)
		}

		ss, err := layer.dilSigmoid.forwardCausal(x)
		if err != nil {
			return nil, fmt.Errorf("vocoder: layer %d dil_sigmoid: %w", i, err)
		}

		at, err := layer.auxTanh.forward1x1(auxT)
		if err != nil {
			return nil, fmt.Errorf("vocoder: layer %d aux_tanh: %w", i, err)
		}

		as, err := layer.auxSigmoid.forward1x1(auxT)
		if err != nil {
			return nil, fmt.Errorf("vocoder: layer %d aux_sigmoid: %w", i, err)
		}

		addInPlace(ts.RawData(), at.RawData())
		addInPlace(ss.RawData(), as.RawData())
		tanhInPlace(ts.RawData())
		sigmoidInPlace(ss.RawData())
		mulInPlace(ts.RawData(), ss.RawData())

		z := ts

		skip, err := layer.skip.forward1x1(z)
		if err != nil {
			return nil, fmt.Errorf("vocoder: layer %d skip: %w", i, err)
		}

		if skipSum == nil {
			skipSum = skip
		} else {
			addInPlace(skipSum.RawData(), skip.RawData())
		}

		resOut, err := layer.res.forward1x1(z)
		if err != nil {
			return nil, fmt.Errorf("vocoder: layer %d res: %w", i, err)
		}

		addInPlace(resOut.RawData(), x.RawData())
		x = resOut
	}

	reluInPlace(skipSum.RawData())

	h, err := m.post1.forward1x1(skipSum)
	if err != nil {
		return nil, fmt.Errorf("vocoder: post conv 1: %w", err)
	}

	reluInPlace(h.RawData())

	logits, err := m.post2.forward1x1(h)
	if err != nil {
		return nil, fmt.Errorf("vocoder: post conv 2: %w", err)
	}

	// [1, quantize, T] -> [T, quantize]
	logits, err = logits.Reshape([]int64{m.cfg.Quantize, t64})
	if err != nil {
		return nil, err
	}

	return logits.Transpose(0, 1)
}

// RequiredKeys lists every tensor name a checkpoint for this config must
// contain. Used by checkpoint validation in doctor.
func (c Config) RequiredKeys() []string {
	keys := []string{
		HParamsKey,
		"causal.weight", "causal.bias",
		"post.1.weight", "post.1.bias",
		"post.2.weight", "post.2.bias",
	}

	for i := range c.DilationDepth * c.DilationRepeat {
		prefix := "layers." + strconv.FormatInt(i, 10) + "."
		for _, part := range []string{"dil_sigmoid", "dil_tanh", "aux_sigmoid", "aux_tanh", "skip", "res"} {
			keys = append(keys, prefix+part+".weight", prefix+part+".bias")
		}
	}

	return keys
}

// ValidateCheckpoint checks a checkpoint file for a complete key set without
// building the graph.
func ValidateCheckpoint(path string) (Config, error) {
	store, err := safetensors.OpenStore(path)
	if err != nil {
		return Config{}, err
	}
	defer store.Close()

	cfg, err := ConfigFromStore(store)
	if err != nil {
		return Config{}, err
	}

	var missing []string

	for _, key := range cfg.RequiredKeys() {
		if !store.Has(key) {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("vocoder: checkpoint %s is missing %d tensors (first: %s)", path, len(missing), missing[0])
	}

	return cfg, nil
}

func addInPlace(dst, src []float32) {
	for i := range dst {
		dst[i] += src[i]
	}
}

func mulInPlace(dst, src []float32) {
	for i := range dst {
		dst[i] *= src[i]
	}
}

func tanhInPlace(v []float32) {
	for i := range v {
		v[i] = float32(math.Tanh(float64(v[i])))
	}
}

func sigmoidInPlace(v []float32) {
	for i := range v {
		v[i] = float32(1 / (1 + math.Exp(float64(-v[i]))))
	}
}

func reluInPlace(v []float32) {
	for i := range v {
		if v[i] < 0 {
			v[i] = 0
		}
	}
}
