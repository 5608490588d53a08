package job

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/renderflow/generate"
	"github.com/BaSui01/renderflow/imaging"
	"github.com/BaSui01/renderflow/internal/ctxkeys"
	"github.com/BaSui01/renderflow/types"
	"github.com/BaSui01/renderflow/workspace"
	"go.uber.org/zap"
)

// Generator runs one generation attempt. generate.Pipeline (through
// GeneratorFunc) and client.Client implement it.
type Generator interface {
	Generate(ctx context.Context, req *generate.Request, progress generate.ProgressFunc) (*generate.Result, error)
}

// GeneratorFunc adapts a function such as (*generate.Pipeline).Run.
type GeneratorFunc func(ctx context.Context, req *generate.Request, progress generate.ProgressFunc) (*generate.Result, error)

func (f GeneratorFunc) Generate(ctx context.Context, req *generate.Request, progress generate.ProgressFunc) (*generate.Result, error) {
	return f(ctx, req, progress)
}

// GenerationInput is what the caller supplies besides the workspace snapshot.
type GenerationInput struct {
	Image *imaging.SourceImage
}

// GenerationAttempt is a started generation.
type GenerationAttempt = Attempt[generate.Result]

// GenerationOutcome is the terminal report of a generation.
type GenerationOutcome = Outcome[generate.Result]

// ControllerOption configures a controller.
type ControllerOption func(*controllerOptions)

type controllerOptions struct {
	seeds  workspace.SeedSource
	watch  func(attemptID string, s State)
	logger *zap.Logger
}

// WithSeedSource replaces the random seed source.
func WithSeedSource(src workspace.SeedSource) ControllerOption {
	return func(o *controllerOptions) { o.seeds = src }
}

// WithStateWatcher observes every state entered by any attempt.
func WithStateWatcher(fn func(attemptID string, s State)) ControllerOption {
	return func(o *controllerOptions) { o.watch = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ControllerOption {
	return func(o *controllerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []ControllerOption) controllerOptions {
	o := controllerOptions{seeds: workspace.RandomSeed, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// GenerationController owns the cancellation of the in-flight generation.
// Running one attempt at a time is the caller's job; Busy reports whether
// one is running.
type GenerationController struct {
	gen   Generator
	store workspace.Store
	opts  controllerOptions

	mu      sync.Mutex
	current *GenerationAttempt
	cancel  context.CancelFunc
}

// NewGenerationController creates a controller over a generator and the
// workspace store that owns the snapshot.
func NewGenerationController(gen Generator, store workspace.Store, opts ...ControllerOption) *GenerationController {
	o := buildOptions(opts)
	o.logger = o.logger.With(zap.String("component", "generation_controller"))
	return &GenerationController{gen: gen, store: store, opts: o}
}

// Ready reports whether an attempt can start: a source image is present and
// the prompt is not blank.
func (c *GenerationController) Ready(snapshot *workspace.Settings, image *imaging.SourceImage) bool {
	return snapshot != nil &&
		image != nil && len(image.Data) > 0 &&
		strings.TrimSpace(snapshot.Prompt) != ""
}

// Busy reports whether the latest attempt is still running.
func (c *GenerationController) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.current.State().Terminal()
}

// State returns the state of the latest attempt, Idle before the first.
func (c *GenerationController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return StateIdle
	}
	return c.current.State()
}

// Start loads the snapshot and starts an attempt in the background. An
// attempt that is not ready never starts and yields a NOT_READY error; every
// later failure is reported through the attempt outcome.
func (c *GenerationController) Start(ctx context.Context, in GenerationInput) (*GenerationAttempt, error) {
	snapshot, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !c.Ready(snapshot, in.Image) {
		return nil, types.NewError(types.ErrNotReady, "a source image and a prompt are required")
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	var attempt *GenerationAttempt
	m := newMachine(generationEdges, func(s State) {
		if c.opts.watch != nil {
			c.opts.watch(attempt.ID, s)
		}
	})
	attempt = newAttempt[generate.Result](m)

	c.mu.Lock()
	c.current = attempt
	c.cancel = cancel
	c.mu.Unlock()

	m.advance(StateValidating)
	attemptCtx = ctxkeys.WithAttemptID(attemptCtx, attempt.ID)
	go c.run(attemptCtx, cancel, attempt, snapshot, in)
	return attempt, nil
}

func (c *GenerationController) run(ctx context.Context, cancel context.CancelFunc, attempt *GenerationAttempt, snapshot *workspace.Settings, in GenerationInput) {
	defer cancel()
	logger := c.opts.logger.With(zap.String("attempt_id", attempt.ID))

	// 未锁定种子时每次重新抽取，并在构建请求前写回快照
	if !snapshot.SeedLock {
		seed := snapshot.RandomizeSeed(c.opts.seeds)
		if err := c.store.Save(ctx, snapshot); err != nil {
			logger.Error("failed to save drawn seed", zap.Error(err))
			attempt.finish(nil, err)
			return
		}
		logger.Debug("seed drawn", zap.Int64("seed", seed))
	}

	req := &generate.Request{
		Model:          snapshot.SelectedModel,
		Prompt:         snapshot.Prompt,
		NegativePrompt: snapshot.NegativePrompt,
		Image:          in.Image,
		Settings:       snapshot.Active(),
	}
	res, err := c.gen.Generate(ctx, req, func(s generate.Stage) {
		attempt.machine.advance(State(s))
	})
	attempt.finish(res, err)

	out := attempt.outcome
	logger.Info("generation attempt finished",
		zap.String("state", string(out.State)),
		zap.String("model", string(req.Model)),
		zap.Error(out.Err),
	)
}

// Cancel cancels the in-flight attempt. It moves the attempt to Cancelled at
// once; whatever the attempt produces afterwards is not reported.
func (c *GenerationController) Cancel() bool {
	c.mu.Lock()
	attempt, cancel := c.current, c.cancel
	c.mu.Unlock()

	if attempt == nil || !attempt.machine.cancel() {
		return false
	}
	cancel()
	return true
}
