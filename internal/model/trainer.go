package model

import (
	"fmt"
	"log"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// TrainConfig holds the training hyperparameters.
type TrainConfig struct {
	Epochs            int
	BatchSize         int
	LearningRate      float64
	ValSplit          float64 // fraction of samples held out for validation
	EarlyStopPatience int     // epochs without val-accuracy improvement
	LRPatience        int     // epochs without val-loss improvement before LR decay
	LRFactor          float64
	Seed              int64
	LogEvery          int // epochs between progress lines, 0 disables logging
}

// DefaultTrainConfig returns the standard training settings.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:            100,
		BatchSize:         32,
		LearningRate:      0.001,
		ValSplit:          0.2,
		EarlyStopPatience: 20,
		LRPatience:        10,
		LRFactor:          0.5,
		Seed:              42,
		LogEvery:          10,
	}
}

// EpochStats records one epoch's losses and accuracies.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	TrainAcc  float64
	ValLoss   float64
	ValAcc    float64
}

// TrainResult summarizes a completed training run.
type TrainResult struct {
	BestValAccuracy float64
	TrainedEpochs   int
	History         []EpochStats
}

// Train fits the network on labeled sequences. Training is a synchronous
// batch loop over the whole dataset in memory; early stopping and learning
// rate reduction are evaluated only at epoch boundaries. On return the
// network carries the weights of the best-validation-accuracy epoch, not the
// final epoch.
func Train(n *Network, samples [][][]float32, classes []int, cfg TrainConfig) (*TrainResult, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no training samples")
	}
	if len(samples) != len(classes) {
		return nil, fmt.Errorf("%d samples but %d class labels", len(samples), len(classes))
	}
	if cfg.Epochs <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("epochs and batch size must be positive")
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	trainIdx, valIdx := stratifiedSplit(classes, cfg.ValSplit, rng)
	if len(valIdx) == 0 {
		// Too few samples to hold anything out; validate on the training set.
		valIdx = trainIdx
	}

	opt := newAdam(cfg.LearningRate)
	result := &TrainResult{}

	bestValAcc := math.Inf(-1)
	bestValLoss := math.Inf(1)
	var bestWeights *Snapshot
	stopCounter := 0
	lrCounter := 0

	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		trainLoss, trainAcc, err := trainEpoch(n, samples, classes, trainIdx, cfg.BatchSize, opt, rng)
		if err != nil {
			return nil, err
		}

		valLoss, valAcc, err := evaluate(n, samples, classes, valIdx, cfg.BatchSize)
		if err != nil {
			return nil, err
		}

		result.History = append(result.History, EpochStats{
			Epoch:     epoch,
			TrainLoss: trainLoss,
			TrainAcc:  trainAcc,
			ValLoss:   valLoss,
			ValAcc:    valAcc,
		})
		result.TrainedEpochs = epoch

		if cfg.LogEvery > 0 && (epoch == 1 || epoch%cfg.LogEvery == 0) {
			log.Printf("Epoch %3d/%d: train loss=%.4f acc=%.1f%% | val loss=%.4f acc=%.1f%%",
				epoch, cfg.Epochs, trainLoss, trainAcc*100, valLoss, valAcc*100)
		}

		// Learning rate reduction on validation-loss plateau.
		if valLoss < bestValLoss {
			bestValLoss = valLoss
			lrCounter = 0
		} else {
			lrCounter++
			if cfg.LRPatience > 0 && lrCounter >= cfg.LRPatience {
				opt.lr *= cfg.LRFactor
				lrCounter = 0
				if cfg.LogEvery > 0 {
					log.Printf("Reducing learning rate to %g", opt.lr)
				}
			}
		}

		// Checkpoint on validation-accuracy improvement.
		if valAcc > bestValAcc {
			bestValAcc = valAcc
			bestWeights = n.Snapshot()
			stopCounter = 0
		} else {
			stopCounter++
			if cfg.EarlyStopPatience > 0 && stopCounter >= cfg.EarlyStopPatience {
				if cfg.LogEvery > 0 {
					log.Printf("Early stopping at epoch %d", epoch)
				}
				break
			}
		}
	}

	// The exported model is the best checkpoint, not the last epoch.
	if bestWeights != nil {
		if err := n.Restore(bestWeights); err != nil {
			return nil, err
		}
	}
	result.BestValAccuracy = bestValAcc

	return result, nil
}

// trainEpoch runs one pass over the training indices in shuffled
// mini-batches and returns the mean loss and accuracy.
func trainEpoch(n *Network, samples [][][]float32, classes []int, idx []int, batchSize int, opt *adam, rng *rand.Rand) (float64, float64, error) {
	shuffled := append([]int(nil), idx...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	totalLoss := 0.0
	correct := 0
	batches := 0

	for start := 0; start < len(shuffled); start += batchSize {
		end := start + batchSize
		if end > len(shuffled) {
			end = len(shuffled)
		}
		batchIdx := shuffled[start:end]

		xs, targets, err := gatherBatch(n.cfg, samples, classes, batchIdx)
		if err != nil {
			return 0, 0, err
		}

		logits, cache := n.forward(xs, true)
		loss, dlogits, hits := crossEntropy(logits, targets)

		n.zeroGrads()
		n.backward(cache, dlogits)
		opt.step(n.params())

		totalLoss += loss
		correct += hits
		batches++
	}

	if batches == 0 {
		return 0, 0, fmt.Errorf("no training batches")
	}
	return totalLoss / float64(batches), float64(correct) / float64(len(shuffled)), nil
}

// evaluate computes mean loss and accuracy over the given indices without
// updating weights.
func evaluate(n *Network, samples [][][]float32, classes []int, idx []int, batchSize int) (float64, float64, error) {
	totalLoss := 0.0
	correct := 0
	batches := 0

	for start := 0; start < len(idx); start += batchSize {
		end := start + batchSize
		if end > len(idx) {
			end = len(idx)
		}
		batchIdx := idx[start:end]

		xs, targets, err := gatherBatch(n.cfg, samples, classes, batchIdx)
		if err != nil {
			return 0, 0, err
		}

		logits, _ := n.forward(xs, false)
		loss, _, hits := crossEntropy(logits, targets)

		totalLoss += loss
		correct += hits
		batches++
	}

	if batches == 0 {
		return 0, 0, fmt.Errorf("no evaluation batches")
	}
	return totalLoss / float64(batches), float64(correct) / float64(len(idx)), nil
}

// gatherBatch builds per-timestep batch matrices and targets for a set of
// sample indices.
func gatherBatch(cfg Config, samples [][][]float32, classes []int, idx []int) ([]*mat.Dense, []int, error) {
	batchSamples := make([][][]float32, len(idx))
	targets := make([]int, len(idx))
	for i, s := range idx {
		batchSamples[i] = samples[s]
		targets[i] = classes[s]
	}

	xs, err := batchMatrices(batchSamples, cfg.SequenceLength, cfg.NumFeatures)
	if err != nil {
		return nil, nil, err
	}
	return xs, targets, nil
}

// crossEntropy computes the mean softmax cross-entropy loss, its gradient
// with respect to the logits, and the number of correct argmax predictions.
func crossEntropy(logits *mat.Dense, targets []int) (float64, *mat.Dense, int) {
	batch, numClasses := logits.Dims()
	dlogits := mat.NewDense(batch, numClasses, nil)

	loss := 0.0
	correct := 0
	for b := 0; b < batch; b++ {
		// Stable softmax
		maxLogit := logits.At(b, 0)
		argmax := 0
		for j := 1; j < numClasses; j++ {
			if logits.At(b, j) > maxLogit {
				maxLogit = logits.At(b, j)
				argmax = j
			}
		}
		if argmax == targets[b] {
			correct++
		}

		sum := 0.0
		for j := 0; j < numClasses; j++ {
			sum += math.Exp(logits.At(b, j) - maxLogit)
		}

		logSum := math.Log(sum)
		loss += -(logits.At(b, targets[b]) - maxLogit - logSum)

		for j := 0; j < numClasses; j++ {
			p := math.Exp(logits.At(b, j)-maxLogit) / sum
			grad := p
			if j == targets[b] {
				grad -= 1
			}
			dlogits.Set(b, j, grad/float64(batch))
		}
	}

	return loss / float64(batch), dlogits, correct
}

// stratifiedSplit partitions sample indices into train and validation sets,
// keeping each class's proportions. Classes too small to contribute a
// validation sample stay entirely in the training set.
func stratifiedSplit(classes []int, valSplit float64, rng *rand.Rand) (train, val []int) {
	byClass := make(map[int][]int)
	for i, c := range classes {
		byClass[c] = append(byClass[c], i)
	}

	for _, idx := range byClass {
		rng.Shuffle(len(idx), func(i, j int) {
			idx[i], idx[j] = idx[j], idx[i]
		})

		nVal := int(math.Round(float64(len(idx)) * valSplit))
		if nVal >= len(idx) {
			nVal = len(idx) - 1
		}
		val = append(val, idx[:nVal]...)
		train = append(train, idx[nVal:]...)
	}

	rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })
	rng.Shuffle(len(val), func(i, j int) { val[i], val[j] = val[j], val[i] })
	return train, val
}
