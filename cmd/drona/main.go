package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/ayusman/drona/internal/app"
	"github.com/ayusman/drona/internal/capture"
	"github.com/ayusman/drona/internal/classify"
	"github.com/ayusman/drona/internal/dataset"
	"github.com/ayusman/drona/internal/server"
	"github.com/ayusman/drona/internal/store"
	"github.com/ayusman/drona/internal/tray"
	"gocv.io/x/gocv"
)

const defaultClasses = "one,two,three,four"

func main() {
	parser := argparse.NewParser("drona", "Teachable camera: hold a class key to teach, release to classify")

	dataDir := parser.String("d", "data", &argparse.Options{Default: "data", Help: "Dataset root directory"})
	classesArg := parser.String("c", "classes", &argparse.Options{Help: "Comma-separated class names bound to keys 1..9"})
	cameraID := parser.Int("", "camera", &argparse.Options{Default: 0, Help: "Camera device ID"})
	videoPath := parser.String("", "video", &argparse.Options{Help: "Read frames from a video file instead of a camera"})
	loopVideo := parser.Flag("", "loop-video", &argparse.Options{Help: "Restart video file playback at EOF"})
	modelPath := parser.String("m", "model", &argparse.Options{Help: "Path to an ONNX embedding model"})
	metadataPath := parser.String("", "metadata", &argparse.Options{Help: "Path to the model metadata JSON"})
	neighbors := parser.Int("k", "neighbors", &argparse.Options{Default: classify.DefaultK, Help: "Neighbors per prediction"})
	fps := parser.Int("", "fps", &argparse.Options{Default: 0, Help: "Loop rate; 0 uses the source's rate"})
	httpAddr := parser.String("", "http", &argparse.Options{Help: "Serve the HTTP monitor on this address (e.g. :8080)"})
	useTray := parser.Flag("", "tray", &argparse.Options{Help: "Show a system tray icon"})
	headless := parser.Flag("", "headless", &argparse.Options{Help: "Run without a display window"})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	fmt.Println("Drona - Teachable Camera")

	ds, err := dataset.New(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}

	catalog := openCatalog()
	if catalog != nil {
		defer catalog.Close()
	}

	classes := resolveClasses(*classesArg, catalog)
	for _, class := range classes {
		if err := ds.EnsureClass(class); err != nil {
			log.Fatalf("Failed to create class %q: %v", class, err)
		}
	}
	rememberRun(catalog, *dataDir, classes)

	engine := classify.NewEngine(buildEmbedder(*modelPath, *metadataPath), *neighbors)
	defer engine.Close()

	cfg := app.Config{
		Dataset: ds,
		Engine:  engine,
		Camera:  buildCamera(*videoPath, *loopVideo, *cameraID),
		Catalog: catalog,
		FPS:     *fps,
	}

	if !*headless {
		win := gocv.NewWindow("Drona")
		cfg.Display = app.NewWindowDisplay(win)
		cfg.Input = app.NewWindowInput(win, app.DefaultKeyMap(classes))
	}

	if *httpAddr != "" {
		srv := server.New(server.Config{Dataset: ds})
		cfg.OnFrame = srv.PublishFrame
		cfg.OnPrediction = srv.BroadcastPrediction

		go func() {
			log.Printf("monitor listening on %s", *httpAddr)
			if err := srv.ListenAndServe(*httpAddr); err != nil {
				log.Printf("monitor stopped: %v", err)
			}
		}()
	}

	var t *tray.Tray
	if *useTray {
		t = tray.New()
		prev := cfg.OnPrediction
		cfg.OnPrediction = func(p classify.Prediction) {
			if prev != nil {
				prev(p)
			}
			t.SetPrediction(fmt.Sprintf("%s (%.2f)", p.Label, p.Confidence))
		}
	}

	application := app.New(cfg)

	// Teach everything already on disk before the loop starts, so a
	// restarted session picks up where the last one left off.
	if hasExamples(ds) {
		if err := application.Reload(); err != nil {
			log.Printf("initial reload failed: %v", err)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		application.Stop()
	}()

	if t != nil {
		t.OnToggle(application.SetPaused)
		t.OnQuit(application.Stop)

		// systray owns the main thread; the loop runs beside it.
		done := make(chan error, 1)
		go func() {
			done <- application.Run()
			t.Quit()
		}()
		t.Run()

		if err := <-done; err != nil {
			log.Fatalf("Loop failed: %v", err)
		}
		return
	}

	if err := application.Run(); err != nil {
		log.Fatalf("Loop failed: %v", err)
	}
}

// openCatalog opens the session catalog under the user's home directory.
// The catalog is bookkeeping only, so failures degrade to running without
// one rather than aborting.
func openCatalog() *store.Store {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Printf("catalog disabled: %v", err)
		return nil
	}

	dbDir := filepath.Join(homeDir, ".drona")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		log.Printf("catalog disabled: %v", err)
		return nil
	}

	catalog, err := store.New(filepath.Join(dbDir, "drona.db"))
	if err != nil {
		log.Printf("catalog disabled: %v", err)
		return nil
	}

	return catalog
}

// resolveClasses picks the class list: the --classes flag, then whatever
// the last run used, then the built-in default.
func resolveClasses(arg string, catalog *store.Store) []string {
	if arg == "" && catalog != nil {
		if saved, err := catalog.Settings().Get("classes"); err == nil {
			arg = saved
		}
	}
	if arg == "" {
		arg = defaultClasses
	}

	var classes []string
	for _, name := range strings.Split(arg, ",") {
		if name = strings.TrimSpace(name); name != "" {
			classes = append(classes, name)
		}
	}

	if len(classes) == 0 {
		log.Fatalf("No usable class names in %q", arg)
	}
	return classes
}

// rememberRun persists the class list and dataset root for the next run.
func rememberRun(catalog *store.Store, dataDir string, classes []string) {
	if catalog == nil {
		return
	}
	if err := catalog.Settings().Set("classes", strings.Join(classes, ",")); err != nil {
		log.Printf("failed to save classes setting: %v", err)
	}
	if err := catalog.Settings().Set("dataset_root", dataDir); err != nil {
		log.Printf("failed to save dataset_root setting: %v", err)
	}
}

// buildEmbedder tries the ONNX model first and falls back to the
// model-free histogram embedder, so the demo runs without a model file.
func buildEmbedder(modelPath, metadataPath string) classify.Embedder {
	if modelPath != "" {
		if metadataPath == "" {
			metadataPath = strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".json"
		}
		if embedder, err := classify.NewONNXEmbedder(modelPath, metadataPath); err == nil {
			log.Printf("Using ONNX embedding model %s", modelPath)
			return embedder
		} else {
			log.Printf("ONNX model unavailable (%v), using histogram embedder", err)
		}
	}
	return classify.NewHistogramEmbedder()
}

// buildCamera picks the frame source: a video file when given, otherwise
// the camera device.
func buildCamera(videoPath string, loopVideo bool, cameraID int) capture.Camera {
	if videoPath != "" {
		return capture.NewFileCamera(videoPath, loopVideo)
	}
	return capture.NewCamera(cameraID)
}

// hasExamples reports whether any class already has stored examples.
func hasExamples(ds *dataset.Store) bool {
	for _, n := range ds.Counts() {
		if n > 0 {
			return true
		}
	}
	return false
}
