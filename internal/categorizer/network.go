package categorizer

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Weights holds the parameters of the embedding / average-pool / dense / softmax
// network. Matrices are row-major.
type Weights struct {
	VocabSize    int `json:"vocabSize"`
	EmbeddingDim int `json:"embeddingDim"`
	HiddenUnits  int `json:"hiddenUnits"`
	Classes      int `json:"classes"`

	Embedding  []float64 `json:"embedding"`  // VocabSize x EmbeddingDim
	Hidden     []float64 `json:"hidden"`     // EmbeddingDim x HiddenUnits
	HiddenBias []float64 `json:"hiddenBias"` // HiddenUnits
	Output     []float64 `json:"output"`     // HiddenUnits x Classes
	OutputBias []float64 `json:"outputBias"` // Classes
}

func newWeights(vocabSize, embeddingDim, hiddenUnits, classes int, rng *rand.Rand) *Weights {
	w := &Weights{
		VocabSize:    vocabSize,
		EmbeddingDim: embeddingDim,
		HiddenUnits:  hiddenUnits,
		Classes:      classes,
		Embedding:    make([]float64, vocabSize*embeddingDim),
		Hidden:       make([]float64, embeddingDim*hiddenUnits),
		HiddenBias:   make([]float64, hiddenUnits),
		Output:       make([]float64, hiddenUnits*classes),
		OutputBias:   make([]float64, classes),
	}
	uniform(w.Embedding, 0.05, rng)
	uniform(w.Hidden, math.Sqrt(6/float64(embeddingDim+hiddenUnits)), rng)
	uniform(w.Output, math.Sqrt(6/float64(hiddenUnits+classes)), rng)
	return w
}

func uniform(dst []float64, limit float64, rng *rand.Rand) {
	for i := range dst {
		dst[i] = (rng.Float64()*2 - 1) * limit
	}
}

// zerosLike returns zeroed buffers shaped like w's parameters.
func (w *Weights) zerosLike() *Weights {
	return &Weights{
		VocabSize:    w.VocabSize,
		EmbeddingDim: w.EmbeddingDim,
		HiddenUnits:  w.HiddenUnits,
		Classes:      w.Classes,
		Embedding:    make([]float64, len(w.Embedding)),
		Hidden:       make([]float64, len(w.Hidden)),
		HiddenBias:   make([]float64, len(w.HiddenBias)),
		Output:       make([]float64, len(w.Output)),
		OutputBias:   make([]float64, len(w.OutputBias)),
	}
}

func (w *Weights) params() [][]float64 {
	return [][]float64{w.Embedding, w.Hidden, w.HiddenBias, w.Output, w.OutputBias}
}

func (w *Weights) validate() error {
	if w.VocabSize < 2 || w.EmbeddingDim <= 0 || w.HiddenUnits <= 0 || w.Classes <= 0 {
		return fmt.Errorf("%w: non-positive dimension", ErrCorruptModel)
	}
	checks := []struct {
		name string
		got  int
		want int
	}{
		{"embedding", len(w.Embedding), w.VocabSize * w.EmbeddingDim},
		{"hidden", len(w.Hidden), w.EmbeddingDim * w.HiddenUnits},
		{"hidden bias", len(w.HiddenBias), w.HiddenUnits},
		{"output", len(w.Output), w.HiddenUnits * w.Classes},
		{"output bias", len(w.OutputBias), w.Classes},
	}
	for _, c := range checks {
		if c.got != c.want {
			return fmt.Errorf("%w: %s has %d values, want %d", ErrCorruptModel, c.name, c.got, c.want)
		}
	}
	return nil
}

// activations keeps the intermediate values of one forward pass for backprop.
type activations struct {
	seq    []int
	pooled []float64
	pre    []float64 // hidden pre-activation
	hidden []float64 // after ReLU and dropout
	mask   []float64 // dropout scale per unit; nil when not training
	probs  []float64
}

// forward runs one sequence through the network. Dropout is applied only when
// rng is non-nil and rate is positive.
func (w *Weights) forward(seq []int, dropout float64, rng *rand.Rand) *activations {
	e, h, c := w.EmbeddingDim, w.HiddenUnits, w.Classes
	a := &activations{
		seq:    seq,
		pooled: make([]float64, e),
		pre:    make([]float64, h),
		hidden: make([]float64, h),
		probs:  make([]float64, c),
	}

	// Padding positions take part in the mean, matching an unmasked pooling layer.
	for _, tok := range seq {
		row := w.Embedding[tok*e : (tok+1)*e]
		for k, v := range row {
			a.pooled[k] += v
		}
	}
	if n := float64(len(seq)); n > 0 {
		for k := range a.pooled {
			a.pooled[k] /= n
		}
	}

	for j := 0; j < h; j++ {
		sum := w.HiddenBias[j]
		for k := 0; k < e; k++ {
			sum += a.pooled[k] * w.Hidden[k*h+j]
		}
		a.pre[j] = sum
		if sum > 0 {
			a.hidden[j] = sum
		}
	}

	if rng != nil && dropout > 0 {
		a.mask = make([]float64, h)
		keep := 1 - dropout
		for j := range a.mask {
			if rng.Float64() < keep {
				a.mask[j] = 1 / keep
			}
			a.hidden[j] *= a.mask[j]
		}
	}

	for k := 0; k < c; k++ {
		sum := w.OutputBias[k]
		for j := 0; j < h; j++ {
			sum += a.hidden[j] * w.Output[j*c+k]
		}
		a.probs[k] = sum
	}
	softmax(a.probs)
	return a
}

// backward accumulates the cross-entropy gradients of one example into grad.
func (w *Weights) backward(a *activations, label int, grad *Weights) {
	e, h, c := w.EmbeddingDim, w.HiddenUnits, w.Classes

	dz2 := make([]float64, c)
	copy(dz2, a.probs)
	dz2[label] -= 1

	dHidden := make([]float64, h)
	for j := 0; j < h; j++ {
		for k := 0; k < c; k++ {
			grad.Output[j*c+k] += a.hidden[j] * dz2[k]
			dHidden[j] += w.Output[j*c+k] * dz2[k]
		}
	}
	for k := 0; k < c; k++ {
		grad.OutputBias[k] += dz2[k]
	}

	for j := 0; j < h; j++ {
		if a.mask != nil {
			dHidden[j] *= a.mask[j]
		}
		if a.pre[j] <= 0 {
			dHidden[j] = 0
		}
	}

	dPooled := make([]float64, e)
	for k := 0; k < e; k++ {
		for j := 0; j < h; j++ {
			grad.Hidden[k*h+j] += a.pooled[k] * dHidden[j]
			dPooled[k] += w.Hidden[k*h+j] * dHidden[j]
		}
	}
	for j := 0; j < h; j++ {
		grad.HiddenBias[j] += dHidden[j]
	}

	n := float64(len(a.seq))
	for _, tok := range a.seq {
		row := grad.Embedding[tok*e : (tok+1)*e]
		for k := range row {
			row[k] += dPooled[k] / n
		}
	}
}

func softmax(v []float64) {
	maxV := math.Inf(-1)
	for _, x := range v {
		maxV = math.Max(maxV, x)
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - maxV)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// adam is the Adam optimiser with the Keras defaults for beta and epsilon.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  [][]float64
}

func newAdam(lr float64, params [][]float64) *adam {
	opt := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	for _, p := range params {
		opt.m = append(opt.m, make([]float64, len(p)))
		opt.v = append(opt.v, make([]float64, len(p)))
	}
	return opt
}

func (o *adam) step(params, grads [][]float64) {
	o.t++
	bc1 := 1 - math.Pow(o.beta1, float64(o.t))
	bc2 := 1 - math.Pow(o.beta2, float64(o.t))
	for i, p := range params {
		g, m, v := grads[i], o.m[i], o.v[i]
		for j := range p {
			m[j] = o.beta1*m[j] + (1-o.beta1)*g[j]
			v[j] = o.beta2*v[j] + (1-o.beta2)*g[j]*g[j]
			p[j] -= o.lr * (m[j] / bc1) / (math.Sqrt(v[j]/bc2) + o.eps)
		}
	}
}
