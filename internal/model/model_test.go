package model

import (
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testConfig() Config {
	return Config{SequenceLength: 5, NumFeatures: 8, NumClasses: 3}
}

// syntheticSample builds a deterministic sequence whose values depend on the
// class, so classes are separable.
func syntheticSample(class int, variant int, seqLen, numFeatures int) [][]float32 {
	rng := rand.New(rand.NewSource(int64(class*1000 + variant)))
	base := float32(class) * 0.5

	frames := make([][]float32, seqLen)
	for t := range frames {
		frames[t] = make([]float32, numFeatures)
		for j := range frames[t] {
			noise := float32(rng.Float64()-0.5) * 0.1
			frames[t][j] = base + float32(t)*0.01 + noise
		}
	}
	return frames
}

func syntheticDataset(numClasses, perClass, seqLen, numFeatures int) ([][][]float32, []int) {
	var samples [][][]float32
	var classes []int
	for c := 0; c < numClasses; c++ {
		for v := 0; v < perClass; v++ {
			samples = append(samples, syntheticSample(c, v, seqLen, numFeatures))
			classes = append(classes, c)
		}
	}
	return samples, classes
}

func TestNewNetwork_DeterministicForSeed(t *testing.T) {
	a, err := NewNetwork(testConfig(), 7)
	if err != nil {
		t.Fatalf("NewNetwork() error = %v", err)
	}
	b, err := NewNetwork(testConfig(), 7)
	if err != nil {
		t.Fatalf("NewNetwork() error = %v", err)
	}

	sa, sb := a.Snapshot(), b.Snapshot()
	for name, ta := range sa.Params {
		tb := sb.Params[name]
		for i := range ta.Data {
			if ta.Data[i] != tb.Data[i] {
				t.Fatalf("param %q value %d differs between identical seeds", name, i)
			}
		}
	}
}

func TestNetwork_PredictShape(t *testing.T) {
	n, err := NewNetwork(testConfig(), 1)
	if err != nil {
		t.Fatalf("NewNetwork() error = %v", err)
	}

	scores, err := n.Predict(syntheticSample(0, 0, 5, 8))
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}
	if len(scores) != 3 {
		t.Errorf("got %d scores, want 3", len(scores))
	}

	class, err := n.Classify(syntheticSample(1, 0, 5, 8))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if class < 0 || class >= 3 {
		t.Errorf("class = %d, out of range", class)
	}
}

func TestNetwork_PredictRejectsWrongShape(t *testing.T) {
	n, err := NewNetwork(testConfig(), 1)
	if err != nil {
		t.Fatalf("NewNetwork() error = %v", err)
	}

	if _, err := n.Predict(syntheticSample(0, 0, 4, 8)); err == nil {
		t.Error("expected error for wrong sequence length")
	}
	if _, err := n.Predict(syntheticSample(0, 0, 5, 7)); err == nil {
		t.Error("expected error for wrong feature count")
	}
}

func TestNetwork_GradientsMatchFiniteDifferences(t *testing.T) {
	cfg := Config{SequenceLength: 3, NumFeatures: 4, NumClasses: 2}
	n, err := NewNetwork(cfg, 3)
	if err != nil {
		t.Fatalf("NewNetwork() error = %v", err)
	}

	samples, classes := syntheticDataset(2, 2, 3, 4)
	xs, err := batchMatrices(samples, 3, 4)
	if err != nil {
		t.Fatalf("batchMatrices() error = %v", err)
	}

	lossAt := func() float64 {
		logits, _ := n.forward(xs, false)
		loss, _, _ := crossEntropy(logits, classes)
		return loss
	}

	// Analytic gradients, dropout disabled (eval-mode forward).
	logits, cache := n.forward(xs, false)
	_, dlogits, _ := crossEntropy(logits, classes)
	n.zeroGrads()
	n.backward(cache, dlogits)

	const h = 1e-6
	rng := rand.New(rand.NewSource(11))

	for _, p := range n.params() {
		rows, cols := p.val.Dims()
		// Spot-check a handful of entries per parameter.
		for k := 0; k < 5; k++ {
			i, j := rng.Intn(rows), rng.Intn(cols)

			orig := p.val.At(i, j)
			p.val.Set(i, j, orig+h)
			up := lossAt()
			p.val.Set(i, j, orig-h)
			down := lossAt()
			p.val.Set(i, j, orig)

			numeric := (up - down) / (2 * h)
			analytic := p.grad.At(i, j)

			diff := math.Abs(numeric - analytic)
			scale := math.Max(1, math.Max(math.Abs(numeric), math.Abs(analytic)))
			if diff/scale > 1e-4 {
				t.Errorf("param %q (%d,%d): analytic %g vs numeric %g", p.name, i, j, analytic, numeric)
			}
		}
	}
}

func TestTrain_LossDecreasesOnAverage(t *testing.T) {
	cfg := Config{SequenceLength: 30, NumFeatures: 20, NumClasses: 2}
	n, err := NewNetwork(cfg, 5)
	if err != nil {
		t.Fatalf("NewNetwork() error = %v", err)
	}

	samples, classes := syntheticDataset(2, 10, 30, 20)

	tcfg := DefaultTrainConfig()
	tcfg.Epochs = 12
	tcfg.EarlyStopPatience = 0 // run all epochs
	tcfg.LogEvery = 0

	result, err := Train(n, samples, classes, tcfg)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if result.TrainedEpochs != 12 {
		t.Errorf("trained %d epochs, want 12", result.TrainedEpochs)
	}

	half := len(result.History) / 2
	firstHalf, secondHalf := 0.0, 0.0
	for i, st := range result.History {
		if i < half {
			firstHalf += st.TrainLoss
		} else {
			secondHalf += st.TrainLoss
		}
	}
	firstHalf /= float64(half)
	secondHalf /= float64(len(result.History) - half)

	if secondHalf >= firstHalf {
		t.Errorf("mean train loss did not decrease: first half %.4f, second half %.4f", firstHalf, secondHalf)
	}
}

func TestTrain_BestCheckpointKept(t *testing.T) {
	cfg := Config{SequenceLength: 10, NumFeatures: 6, NumClasses: 2}
	n, err := NewNetwork(cfg, 9)
	if err != nil {
		t.Fatalf("NewNetwork() error = %v", err)
	}

	samples, classes := syntheticDataset(2, 8, 10, 6)

	tcfg := DefaultTrainConfig()
	tcfg.Epochs = 8
	tcfg.LogEvery = 0

	result, err := Train(n, samples, classes, tcfg)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}

	if result.BestValAccuracy < 0 || result.BestValAccuracy > 1 {
		t.Errorf("best val accuracy = %f, out of range", result.BestValAccuracy)
	}
	if len(result.History) == 0 {
		t.Fatal("history is empty")
	}

	// BestValAccuracy must equal the maximum observed validation accuracy.
	maxAcc := 0.0
	for _, st := range result.History {
		if st.ValAcc > maxAcc {
			maxAcc = st.ValAcc
		}
	}
	if result.BestValAccuracy != maxAcc {
		t.Errorf("BestValAccuracy = %f, want max observed %f", result.BestValAccuracy, maxAcc)
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	n, err := NewNetwork(testConfig(), 21)
	if err != nil {
		t.Fatalf("NewNetwork() error = %v", err)
	}

	sample := syntheticSample(1, 1, 5, 8)
	want, err := n.Predict(sample)
	if err != nil {
		t.Fatalf("Predict() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "weights.gob")
	if err := SaveSnapshot(path, n.Snapshot()); err != nil {
		t.Fatalf("SaveSnapshot() error = %v", err)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot() error = %v", err)
	}

	restored, err := FromSnapshot(loaded)
	if err != nil {
		t.Fatalf("FromSnapshot() error = %v", err)
	}

	got, err := restored.Predict(sample)
	if err != nil {
		t.Fatalf("Predict() after restore error = %v", err)
	}

	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("score %d = %g, want %g", i, got[i], want[i])
		}
	}
}

func TestStratifiedSplit(t *testing.T) {
	classes := make([]int, 20)
	for i := 10; i < 20; i++ {
		classes[i] = 1
	}

	train, val := stratifiedSplit(classes, 0.2, rand.New(rand.NewSource(1)))

	if len(train)+len(val) != 20 {
		t.Fatalf("split sizes %d+%d != 20", len(train), len(val))
	}
	if len(val) != 4 {
		t.Errorf("val size = %d, want 4 (2 per class)", len(val))
	}

	valByClass := map[int]int{}
	for _, i := range val {
		valByClass[classes[i]]++
	}
	if valByClass[0] != 2 || valByClass[1] != 2 {
		t.Errorf("val class balance = %v, want 2 each", valByClass)
	}
}

func TestCrossEntropy_PerfectPrediction(t *testing.T) {
	logits := mat.NewDense(2, 2, []float64{10, -10, -10, 10})
	loss, _, correct := crossEntropy(logits, []int{0, 1})

	if loss > 1e-6 {
		t.Errorf("loss = %g, want ~0 for confident correct predictions", loss)
	}
	if correct != 2 {
		t.Errorf("correct = %d, want 2", correct)
	}
}
