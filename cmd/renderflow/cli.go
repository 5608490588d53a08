package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/BaSui01/renderflow/client"
	"github.com/BaSui01/renderflow/config"
	"github.com/BaSui01/renderflow/imaging"
	"github.com/BaSui01/renderflow/job"
	"github.com/BaSui01/renderflow/workspace"
)

// =============================================================================
// 🧰 generate / refine 共用的运行环境
// =============================================================================

// commonFlags 是 generate 和 refine 共享的参数
type commonFlags struct {
	configPath string
	addr       string
	apiKey     string
	verbose    bool
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "Path to config file (in-process mode)")
	fs.StringVar(&f.addr, "addr", "", "Remote server address, e.g. http://localhost:8080")
	fs.StringVar(&f.apiKey, "api-key", os.Getenv("RENDERFLOW_API_KEY"), "API key for the remote server")
	fs.BoolVar(&f.verbose, "v", false, "Verbose logging to stderr")
}

// backend 把控制器需要的端口绑定到本地管线或远程服务
type backend struct {
	generator job.Generator
	refiner   job.Refiner
	store     workspace.Store
	logger    *zap.Logger
	close     func() error
}

func newBackend(ctx context.Context, f commonFlags) (*backend, error) {
	level := "warn"
	if f.verbose {
		level = "debug"
	}

	if f.addr != "" {
		logger := initLogger(config.LogConfig{Level: level, Format: "console", OutputPaths: []string{"stderr"}})
		c := client.New(client.Config{BaseURL: f.addr, APIKey: f.apiKey}, nil, logger)
		return &backend{
			generator: c,
			refiner:   c,
			store:     c.Workspace(),
			logger:    logger,
			close:     func() error { return nil },
		}, nil
	}

	cfg, err := loadConfig(f.configPath)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Log
	logCfg.Level = level
	logCfg.OutputPaths = []string{"stderr"}
	logger := initLogger(logCfg)

	comp, err := newComponents(ctx, cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	return &backend{
		generator: job.GeneratorFunc(comp.pipeline.Run),
		refiner:   comp.refiner,
		store:     comp.workspace,
		logger:    logger,
		close:     comp.Close,
	}, nil
}

// watchState 把状态变化打印到 stderr
func watchState(w io.Writer) job.ControllerOption {
	return job.WithStateWatcher(func(attemptID string, s job.State) {
		fmt.Fprintf(w, "[%s] %s\n", attemptID[:8], s)
	})
}

// awaitOutcome 等待尝试结束；interrupt 先结束时通过 cancel 取消控制器
func awaitOutcome[T any](interrupt context.Context, attempt *job.Attempt[T], cancel func() bool, stderr io.Writer) job.Outcome[T] {
	select {
	case <-attempt.Done():
	case <-interrupt.Done():
		if cancel() {
			fmt.Fprintln(stderr, "interrupted, cancelling...")
		}
	}
	outcome, _ := attempt.Wait(context.Background())
	return outcome
}

// outcomeError 把非 Done 结果转换为命令错误
func outcomeError[T any](o job.Outcome[T]) error {
	switch o.State {
	case job.StateDone:
		return nil
	case job.StateCancelled:
		return errors.New("cancelled")
	default:
		if o.Err != nil {
			return fmt.Errorf("%s error: %w", o.Kind(), o.Err)
		}
		return fmt.Errorf("attempt ended in state %s", o.State)
	}
}

func readSourceImage(path string) (*imaging.SourceImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	img := &imaging.SourceImage{
		Data:        data,
		ContentType: http.DetectContentType(data),
		FileName:    filepath.Base(path),
	}
	if err := imaging.ValidateSourceImage(img); err != nil {
		return nil, err
	}
	return img, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// 🎨 generate 命令
// =============================================================================

func runGenerate(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	imagePath := fs.String("image", "", "Source image (PNG, JPEG or WEBP)")
	prompt := fs.String("prompt", "", "Replace the workspace prompt")
	model := fs.String("model", "", "Select the image model (qwen, flux, gemini, seedream)")
	seed := fs.Int64("seed", -1, "Lock the seed of the selected model")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *imagePath == "" {
		return errors.New("--image is required")
	}

	img, err := readSourceImage(*imagePath)
	if err != nil {
		return err
	}

	interrupt, stop := signalContext()
	defer stop()

	rt, err := newBackend(interrupt, common)
	if err != nil {
		return err
	}
	defer rt.close()

	if err := applyOverrides(interrupt, rt.store, *prompt, *model, *seed); err != nil {
		return err
	}

	controller := job.NewGenerationController(rt.generator, rt.store,
		job.WithLogger(rt.logger),
		watchState(stderr),
	)
	// 尝试本身不随信号取消，中断由 controller.Cancel 统一处理
	attempt, err := controller.Start(context.WithoutCancel(interrupt), job.GenerationInput{Image: img})
	if err != nil {
		return err
	}

	outcome := awaitOutcome(interrupt, attempt, controller.Cancel, stderr)
	if err := outcomeError(outcome); err != nil {
		return err
	}
	return writeJSON(stdout, outcome.Result)
}

// applyOverrides 把命令行参数写入工作区快照，使控制器读到它们
func applyOverrides(ctx context.Context, store workspace.Store, prompt, model string, seed int64) error {
	if prompt == "" && model == "" && seed < 0 {
		return nil
	}

	snapshot, err := store.Load(ctx)
	if err != nil {
		return err
	}
	if prompt != "" {
		snapshot.Prompt = prompt
	}
	if model != "" {
		id, ok := imaging.ParseModelID(model)
		if !ok {
			return fmt.Errorf("model '%s' is not supported", model)
		}
		snapshot.SelectedModel = id
	}
	if seed >= 0 {
		if seed > imaging.MaxSeed {
			return fmt.Errorf("seed must be within [0, %d]", imaging.MaxSeed)
		}
		snapshot.SetModelSettings(snapshot.Active().WithSeed(seed))
		snapshot.SeedLock = true
	}
	return store.Save(ctx, snapshot)
}

// =============================================================================
// ✍️ refine 命令
// =============================================================================

func runRefine(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("refine", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var common commonFlags
	common.register(fs)
	prompt := fs.String("prompt", "", "Rough instruction to refine")
	imagePath := fs.String("image", "", "Optional source image sent with the instruction")
	asJSON := fs.Bool("json", false, "Print the full result as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := job.RefinementInput{Prompt: *prompt}
	if *imagePath != "" {
		img, err := readSourceImage(*imagePath)
		if err != nil {
			return err
		}
		in.Image = img
	}

	interrupt, stop := signalContext()
	defer stop()

	rt, err := newBackend(interrupt, common)
	if err != nil {
		return err
	}
	defer rt.close()

	controller := job.NewRefinementController(rt.refiner, rt.store,
		job.WithLogger(rt.logger),
		watchState(stderr),
	)
	attempt, err := controller.Start(context.WithoutCancel(interrupt), in)
	if err != nil {
		return err
	}

	outcome := awaitOutcome(interrupt, attempt, controller.Cancel, stderr)
	if err := outcomeError(outcome); err != nil {
		return err
	}
	if *asJSON {
		return writeJSON(stdout, outcome.Result)
	}
	_, err = fmt.Fprintln(stdout, outcome.Result.RefinedPrompt)
	return err
}
