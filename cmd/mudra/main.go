package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/dataset"
	"github.com/ayusman/mudra/internal/export"
	"github.com/ayusman/mudra/internal/feature"
	"github.com/ayusman/mudra/internal/model"
	"github.com/ayusman/mudra/internal/sequence"
	"github.com/ayusman/mudra/internal/store"
)

const usage = `Mudra - Sign Language Data Collection and Training

Usage:
  mudra collect -label <name> [-samples N] [flags]   record sign sequences
  mudra train [flags]                                train a classifier
  mudra export [flags]                               export the model to ONNX
  mudra stats [flags]                                show dataset statistics
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "collect":
		err = runCollect(os.Args[2:])
	case "train":
		err = runTrain(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	default:
		fmt.Print(usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", os.Args[1], err)
	}
}

// defaultDir returns ~/.mudra, creating it if needed.
func defaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(homeDir, ".mudra")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

func openCatalog(dbPath string) (*store.Store, error) {
	if dbPath == "" {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(dir, "mudra.db")
	}
	return store.New(dbPath)
}

func dataDir(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	dir, err := defaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

func runCollect(args []string) error {
	fs := flag.NewFlagSet("collect", flag.ExitOnError)
	label := fs.String("label", "", "sign label to record (reads labels from stdin when empty)")
	samples := fs.Int("samples", 1, "number of sequences to record per label")
	data := fs.String("data", "", "dataset directory (default ~/.mudra/data)")
	db := fs.String("db", "", "catalog database path (default ~/.mudra/mudra.db)")
	camera := fs.Int("camera", 0, "camera device ID")
	pose := fs.Bool("pose", true, "include upper-body pose features")
	fs.Parse(args)

	dir, err := dataDir(*data)
	if err != nil {
		return err
	}
	catalog, err := openCatalog(*db)
	if err != nil {
		return err
	}
	defer catalog.Close()

	collector := app.New(app.Config{
		Catalog:  catalog,
		DataDir:  dir,
		CameraID: *camera,
		UsePose:  *pose,
	})
	defer collector.Close()

	if err := collector.Open(); err != nil {
		return err
	}

	if *label != "" {
		return collectLabel(collector, *label, *samples)
	}

	// Interactive mode: one label per stdin line, blank lines skipped.
	fmt.Println("Enter a label per line to record; Ctrl-D to finish.")
	source := sequence.NewReaderLabelSource(bufio.NewReader(os.Stdin))
	for {
		next, err := source.NextLabel()
		if err != nil {
			return nil
		}
		if err := collectLabel(collector, next, *samples); err != nil {
			return err
		}
	}
}

// maxFrameFailures bounds consecutive pipeline errors before a recording
// session is abandoned.
const maxFrameFailures = 30

// collectLabel records count sequences for one label, stepping the pipeline
// at the recorder's pace.
func collectLabel(collector *app.Collector, label string, count int) error {
	if err := collector.SetLabel(label); err != nil {
		return err
	}

	for i := 0; i < count; i++ {
		if err := collector.StartRecording(); err != nil {
			return err
		}
		fmt.Printf("Recording %q (%d/%d)...\n", label, i+1, count)

		failures := 0
		for {
			ref, err := collector.Step()
			if err != nil {
				failures++
				if failures >= maxFrameFailures {
					return fmt.Errorf("giving up after %d frame errors: %w", failures, err)
				}
				log.Printf("Error processing frame: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
			failures = 0
			if ref != nil {
				fmt.Printf("Saved sample %d for %q\n", ref.Index, ref.Label)
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	return nil
}

func runTrain(args []string) error {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	data := fs.String("data", "", "dataset directory (default ~/.mudra/data)")
	modelDir := fs.String("model", "", "output model directory (default ~/.mudra/model)")
	db := fs.String("db", "", "catalog database path (default ~/.mudra/mudra.db)")
	seqLen := fs.Int("frames", sequence.DefaultConfig().SequenceLength, "frames per sequence")
	epochs := fs.Int("epochs", 0, "training epochs (0 uses the default)")
	seed := fs.Int64("seed", 42, "random seed")
	fs.Parse(args)

	dir, err := dataDir(*data)
	if err != nil {
		return err
	}
	outDir := *modelDir
	if outDir == "" {
		base, err := defaultDir()
		if err != nil {
			return err
		}
		outDir = filepath.Join(base, "model")
	}

	ds, err := dataset.NewStore(dir, *seqLen).Load()
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	classes := ds.Classes()
	classIdx, err := ds.ClassIndices(classes)
	if err != nil {
		return err
	}

	fmt.Printf("Loaded %d samples across %d classes (%d features/frame)\n",
		len(ds.Samples), len(classes), ds.NumFeatures)

	netCfg := model.Config{
		SequenceLength: ds.SequenceLength,
		NumFeatures:    ds.NumFeatures,
		NumClasses:     len(classes),
	}
	net, err := model.NewNetwork(netCfg, *seed)
	if err != nil {
		return err
	}

	trainCfg := model.DefaultTrainConfig()
	trainCfg.Seed = *seed
	if *epochs > 0 {
		trainCfg.Epochs = *epochs
	}

	result, err := model.Train(net, ds.Samples, classIdx, trainCfg)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	fmt.Printf("Training finished after %d epochs, best validation accuracy %.1f%%\n",
		result.TrainedEpochs, result.BestValAccuracy*100)

	modelCfg := &config.ModelConfig{
		SequenceLength: ds.SequenceLength,
		NumFeatures:    ds.NumFeatures,
		NumClasses:     len(classes),
		Labels:         classes,
	}
	if err := config.Save(outDir, modelCfg); err != nil {
		return err
	}
	if err := model.SaveSnapshot(filepath.Join(outDir, "weights.gob"), net.Snapshot()); err != nil {
		return err
	}
	fmt.Printf("Model written to %s\n", outDir)

	catalog, err := openCatalog(*db)
	if err != nil {
		return err
	}
	defer catalog.Close()

	run := &store.TrainingRun{
		Samples:     len(ds.Samples),
		Classes:     len(classes),
		Epochs:      result.TrainedEpochs,
		ValAccuracy: result.BestValAccuracy,
		ModelDir:    outDir,
	}
	if err := catalog.Runs().Create(run); err != nil {
		return fmt.Errorf("record training run: %w", err)
	}
	fmt.Printf("Training run %s recorded\n", run.ID)
	return nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	modelDir := fs.String("model", "", "model directory (default ~/.mudra/model)")
	out := fs.String("out", "", "output ONNX path (default <model>/sign_model.onnx)")
	fs.Parse(args)

	dir := *modelDir
	if dir == "" {
		base, err := defaultDir()
		if err != nil {
			return err
		}
		dir = filepath.Join(base, "model")
	}

	modelCfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	snapshot, err := model.LoadSnapshot(filepath.Join(dir, "weights.gob"))
	if err != nil {
		return err
	}

	outPath := *out
	if outPath == "" {
		outPath = filepath.Join(dir, "sign_model.onnx")
	}

	if err := export.Export(outPath, snapshot, modelCfg); err != nil {
		return err
	}
	fmt.Printf("ONNX model written to %s (input %q: batch x %d x %d, output %q: batch x %d)\n",
		outPath, export.InputName, modelCfg.SequenceLength, modelCfg.NumFeatures,
		export.OutputName, modelCfg.NumClasses)
	return nil
}

func runStats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	data := fs.String("data", "", "dataset directory (default ~/.mudra/data)")
	db := fs.String("db", "", "catalog database path (default ~/.mudra/mudra.db)")
	frames := fs.Int("frames", sequence.DefaultConfig().SequenceLength, "frames per sequence")
	fs.Parse(args)

	dir, err := dataDir(*data)
	if err != nil {
		return err
	}

	counts, err := dataset.NewStore(dir, *frames).Counts()
	if err != nil {
		return fmt.Errorf("scan dataset: %w", err)
	}

	labels := make([]string, 0, len(counts))
	total := 0
	for label, n := range counts {
		labels = append(labels, label)
		total += n
	}
	sort.Strings(labels)

	fmt.Printf("Dataset: %s\n", dir)
	fmt.Printf("Feature layout: %d per frame (2 hands + pose) or %d (hands only)\n",
		feature.TotalFeatures, feature.HandFeatures*2)
	for _, label := range labels {
		fmt.Printf("  %-20s %d samples\n", label, counts[label])
	}
	fmt.Printf("Total: %d samples across %d labels\n", total, len(labels))

	catalog, err := openCatalog(*db)
	if err != nil {
		return err
	}
	defer catalog.Close()

	runs, err := catalog.Runs().List()
	if err != nil {
		return err
	}
	if len(runs) > 0 {
		fmt.Println("\nTraining runs:")
		for _, run := range runs {
			fmt.Printf("  %s  %d samples, %d classes, %d epochs, val acc %.1f%%\n",
				run.ID, run.Samples, run.Classes, run.Epochs, run.ValAccuracy*100)
		}
	}
	return nil
}
