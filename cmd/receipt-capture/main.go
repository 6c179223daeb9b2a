package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-capture/internal/capture"
	"github.com/zombor/receipt-capture/internal/gateway"
	"github.com/zombor/receipt-capture/internal/pipeline"
	"github.com/zombor/receipt-capture/internal/processing"
	"github.com/zombor/receipt-capture/internal/receipt"
	"github.com/zombor/receipt-capture/internal/scanning"
)

var version = "dev"

func main() {
	fs := ff.NewFlagSet("receipt-capture")
	var (
		file          = fs.StringLong("file", "", "Receipt file to upload (JPEG, PNG or PDF)")
		cameraImage   = fs.StringLong("camera-image", "", "Image served as the camera frame")
		facing        = fs.StringLong("facing", string(capture.FacingEnvironment), "Camera to request: 'environment' or 'user'")
		shutter       = fs.BoolLong("shutter", "Wait for Enter before taking the photo")
		serverURL     = fs.StringLong("server", "", "Archive server URL; empty processes receipts in-process")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		dbPath        = fs.StringLong("db", "hsa-tracker.db", "Database file path for in-process mode")
		storagePath   = fs.StringLong("storage", "./receipts", "Storage directory path for in-process mode")
		scannerType   = fs.StringLong("scanner", "gemini", "Scanner type for in-process mode: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name")
		maxBytes      = fs.IntLong("max-bytes", int(capture.DefaultMaxBytes), "Largest accepted receipt in bytes")
		stageInterval = fs.DurationLong("stage-interval", 3*time.Second, "How often the progress stage advances")
		tickInterval  = fs.DurationLong("tick-interval", time.Second, "How often elapsed time is reported")
		timeout       = fs.DurationLong("timeout", 60*time.Second, "Elapsed time after which processing is reported as slow")
		pollInterval  = fs.DurationLong("poll-interval", 2*time.Second, "How often the job status is checked")
		retries       = fs.IntLong("retries", 0, "How many times to retry a failed job")
		giveUp        = fs.DurationLong("give-up", 5*time.Minute, "Stop waiting for a result after this long")
		verbose       = fs.BoolLong("verbose", "Log pipeline events")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_CAPTURE"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if (*file == "") == (*cameraImage == "") {
		fmt.Fprintln(os.Stderr, "error: exactly one of --file or --camera-image is required")
		os.Exit(1)
	}

	cfg := processing.DefaultConfig()
	cfg.StageInterval = *stageInterval
	cfg.TickInterval = *tickInterval
	cfg.Timeout = *timeout
	cfg.PollInterval = *pollInterval
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, closeGateway, err := newGateway(ctx, *serverURL, *authUser, *authPass, *dbPath, *storagePath, scanning.Config{
		Type:        *scannerType,
		GeminiKey:   *geminiKey,
		GeminiModel: *geminiModel,
		OllamaURL:   *ollamaURL,
		OllamaModel: *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize gateway", "error", err)
		os.Exit(1)
	}
	defer closeGateway()

	policy := capture.DefaultPolicy()
	policy.MaxBytes = int64(*maxBytes)

	device := &capture.ImageFileDevice{Path: *cameraImage, Facing: capture.Facing(*facing)}
	coordinator := pipeline.NewCoordinator(capture.NewController(device), capture.NewPreviewRegistry(), policy, gw, cfg)

	var acq pipeline.Acquisition
	if *file != "" {
		data, err := os.ReadFile(*file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		acq = pipeline.File(filepath.Base(*file), data, "")
	} else {
		var press <-chan struct{}
		if *shutter {
			press = waitForEnter()
		}
		acq = pipeline.Camera(capture.Facing(*facing), press)
	}

	resultID, err := run(ctx, coordinator, acq, *retries, *giveUp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", pipeline.Reason(err))
		os.Exit(1)
	}
	fmt.Println(resultID)
}

func run(ctx context.Context, coordinator *pipeline.Coordinator, acq pipeline.Acquisition, retries int, giveUp time.Duration) (string, error) {
	lastStage := ""
	cb := pipeline.Callbacks{
		OnProgress: func(snap processing.Snapshot) {
			if snap.Stage != lastStage {
				lastStage = snap.Stage
				fmt.Fprintf(os.Stderr, "%s... (%s)\n", snap.Stage, snap.Elapsed)
			}
		},
		OnTimeout: func() {
			fmt.Fprintln(os.Stderr, "This is taking longer than expected. Still waiting for the result.")
		},
	}

	if acq.Source == pipeline.SourceCamera && acq.Shutter != nil {
		fmt.Fprintln(os.Stderr, "Camera ready. Press Enter to take the photo.")
	}

	r, err := coordinator.Start(ctx, acq, cb)
	if err != nil {
		if r != nil {
			r.Cancel()
		}
		return "", err
	}
	defer r.Cancel()
	fmt.Fprintf(os.Stderr, "Uploaded receipt, tracking ID %s\n", r.Handle())

	waitCtx, cancel := context.WithTimeout(ctx, giveUp)
	defer cancel()

	for attempt := 0; ; attempt++ {
		resultID, err := r.Wait(waitCtx)
		if err == nil {
			return resultID, nil
		}
		var fe *processing.FailureError
		if !errors.As(err, &fe) || attempt >= retries {
			return "", err
		}
		fmt.Fprintf(os.Stderr, "%s Retrying...\n", fe.Reason)
		if err := r.Retry(waitCtx); err != nil {
			return "", err
		}
	}
}

func waitForEnter() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		bufio.NewReader(os.Stdin).ReadString('\n')
		close(ch)
	}()
	return ch
}

// newGateway returns the HTTP gateway when serverURL is set, otherwise an
// in-process receipt service
func newGateway(ctx context.Context, serverURL, user, pass, dbPath, storagePath string, scannerCfg scanning.Config) (pipeline.Gateway, func(), error) {
	if serverURL != "" {
		return gateway.NewHTTPGateway(serverURL, user, pass), func() {}, nil
	}

	db, err := receipt.NewBoltDB(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}

	scanner, err := scanning.New(ctx, scannerCfg)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	store, err := receipt.NewLocalStorage(storagePath)
	if err != nil {
		scanner.Close()
		db.Close()
		return nil, nil, fmt.Errorf("opening storage: %w", err)
	}

	service := receipt.NewService(db, scanner, store)
	if err := service.Resume(); err != nil {
		slog.Warn("Failed to resume pending jobs", "error", err)
	}
	return gateway.NewLocal(service), func() {
		service.Close()
		scanner.Close()
		db.Close()
	}, nil
}
