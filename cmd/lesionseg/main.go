package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"brainseg/pkg/config"
	"brainseg/pkg/inference"
	"brainseg/pkg/segmentation"
	"brainseg/pkg/weights"
)

func main() {
	// Parse command line arguments
	t1Path := flag.String("t1", "", "Path to the T1-weighted scan (.nii or .nii.gz)")
	flairPath := flag.String("flair", "", "Path to the FLAIR scan (.nii or .nii.gz)")
	outputPath := flag.String("output", "", "Output label map path (default: <t1>_seg.nii.gz)")
	runPipeline := flag.Bool("preprocess", false, "Run external co-registration and skull-stripping first")
	pipelineExec := flag.String("preprocess-exec", "brainprep", "External preprocessing executable")
	pipelineDir := flag.String("preprocess-dir", "preprocessed", "Directory for external preprocessing outputs")
	windowSize := flag.String("window", "", "Window size override as x,y,z (default: 128,128,48)")
	configPath := flag.String("config", "", "Optional YAML configuration file")
	cacheDir := flag.String("cache-dir", "", "Checkpoint cache directory override")
	qcSlices := flag.Bool("qc-slices", false, "Save axial label-map slices for visual inspection")
	flag.Parse()

	// Validate inputs
	if *t1Path == "" || *flairPath == "" {
		flag.Usage()
		log.Fatal("both -t1 and -flair are required")
	}

	cfg, err := config.LoadConfig(*configPath, config.DefaultLesionConfig())
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *windowSize != "" {
		w, err := config.ParseWindow(*windowSize)
		if err != nil {
			log.Fatalf("Invalid -window: %v", err)
		}
		cfg.Model.WindowSize = w
	}
	if *cacheDir != "" {
		cfg.Weights.CacheDir = *cacheDir
	}
	if *qcSlices {
		cfg.Output.SaveQCSlices = true
	}

	fmt.Println("================================")
	fmt.Println("WHITE-MATTER LESION + TISSUE SEGMENTATION")
	fmt.Printf("Ensemble of %d folds, %d classes, window %v\n",
		cfg.Model.NumFolds, cfg.Model.NumClasses, cfg.Model.WindowSize)
	fmt.Println("================================")

	net, err := inference.NewONNXNetwork(cfg.Model.NumClasses, cfg.Model.InputName, cfg.Model.OutputName)
	if err != nil {
		log.Fatalf("Failed to initialize network: %v", err)
	}
	defer net.Close()

	store := weights.NewStore(cfg.Weights.CacheDir, cfg.Weights.URLPattern)

	params := &segmentation.Params{
		InputPaths: map[string]string{
			"t1":    *t1Path,
			"flair": *flairPath,
		},
		OutputFile:   *outputPath,
		RunPipeline:  *runPipeline,
		PipelineExec: *pipelineExec,
		PipelineDir:  *pipelineDir,
	}

	segmenter := segmentation.NewSegmenter(params, cfg, net, store)

	startTime := time.Now()
	if err := segmenter.Run(); err != nil {
		log.Fatalf("Segmentation failed: %v", err)
	}

	fmt.Printf("\nSegmentation completed successfully in %.2f seconds!\n", time.Since(startTime).Seconds())
}
