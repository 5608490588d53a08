package job

import (
	"context"
	"strings"
	"sync"

	"github.com/BaSui01/renderflow/imaging"
	"github.com/BaSui01/renderflow/internal/ctxkeys"
	"github.com/BaSui01/renderflow/refine"
	"github.com/BaSui01/renderflow/types"
	"github.com/BaSui01/renderflow/workspace"
	"go.uber.org/zap"
)

// Refiner rewrites a prompt. refine.Service and client.Client implement it.
type Refiner interface {
	Refine(ctx context.Context, req *refine.Request) (*refine.Result, error)
}

// RefinementInput is the rough instruction and the optional source image.
type RefinementInput struct {
	Prompt string
	Image  *imaging.SourceImage
}

// RefinementAttempt is a started refinement.
type RefinementAttempt = Attempt[refine.Result]

// RefinementOutcome is the terminal report of a refinement.
type RefinementOutcome = Outcome[refine.Result]

// RefinementController drives refinements. With a workspace store it reads
// the LLM settings from the snapshot and, on success, writes the refined
// prompt back and hides the refiner.
type RefinementController struct {
	refiner Refiner
	store   workspace.Store
	opts    controllerOptions

	mu      sync.Mutex
	current *RefinementAttempt
	cancel  context.CancelFunc
}

// NewRefinementController creates a controller. store may be nil.
func NewRefinementController(refiner Refiner, store workspace.Store, opts ...ControllerOption) *RefinementController {
	o := buildOptions(opts)
	o.logger = o.logger.With(zap.String("component", "refinement_controller"))
	return &RefinementController{refiner: refiner, store: store, opts: o}
}

// Ready reports whether the rough prompt is not blank.
func (c *RefinementController) Ready(in RefinementInput) bool {
	return strings.TrimSpace(in.Prompt) != ""
}

// Busy reports whether the latest attempt is still running.
func (c *RefinementController) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil && !c.current.State().Terminal()
}

// State returns the state of the latest attempt, Idle before the first.
func (c *RefinementController) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return StateIdle
	}
	return c.current.State()
}

// BuildRequest maps the input and the snapshot LLM settings to a refine
// request. The image is attached only when the snapshot allows it.
func BuildRequest(snapshot *workspace.Settings, in RefinementInput) *refine.Request {
	if snapshot == nil {
		snapshot = workspace.Defaults()
	}
	llm := snapshot.LLMFor(snapshot.SelectedModel)
	req := &refine.Request{
		Prompt:              in.Prompt,
		System:              llm.SystemPrompt,
		Model:               llm.Model,
		Temperature:         refine.NumberOf(llm.Temperature),
		TopP:                refine.NumberOf(llm.TopP),
		MaxCompletionTokens: refine.NumberOf(float64(llm.MaxCompletionTokens)),
	}
	if snapshot.SendImageToLLM && in.Image != nil && len(in.Image.Data) > 0 {
		req.Image = in.Image.DataURI()
	}
	return req
}

// Start begins a refinement in the background. A blank prompt never starts
// and yields a NOT_READY error.
func (c *RefinementController) Start(ctx context.Context, in RefinementInput) (*RefinementAttempt, error) {
	if !c.Ready(in) {
		return nil, types.NewError(types.ErrNotReady, "a prompt to refine is required")
	}
	snapshot := workspace.Defaults()
	if c.store != nil {
		loaded, err := c.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		snapshot = loaded
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	var attempt *RefinementAttempt
	m := newMachine(refinementEdges, func(s State) {
		if c.opts.watch != nil {
			c.opts.watch(attempt.ID, s)
		}
	})
	attempt = newAttempt[refine.Result](m)

	c.mu.Lock()
	c.current = attempt
	c.cancel = cancel
	c.mu.Unlock()

	m.advance(StateDispatching)
	attemptCtx = ctxkeys.WithAttemptID(attemptCtx, attempt.ID)
	go c.run(attemptCtx, cancel, attempt, BuildRequest(snapshot, in))
	return attempt, nil
}

func (c *RefinementController) run(ctx context.Context, cancel context.CancelFunc, attempt *RefinementAttempt, req *refine.Request) {
	defer cancel()
	logger := c.opts.logger.With(zap.String("attempt_id", attempt.ID))

	attempt.machine.advance(StateAwaitingProvider)
	res, err := c.refiner.Refine(ctx, req)
	if err == nil {
		if cerr := ctx.Err(); cerr != nil {
			res, err = nil, types.NewCancelledError(cerr)
		}
	}
	if err == nil && c.store != nil {
		err = c.writeBack(ctx, res.RefinedPrompt)
	}
	attempt.finish(res, err)

	logger.Info("refinement attempt finished",
		zap.String("state", string(attempt.outcome.State)),
		zap.String("model", req.Model),
		zap.Error(attempt.outcome.Err),
	)
}

// writeBack reloads the snapshot so that edits made while the call was in
// flight are kept, then replaces the prompt.
func (c *RefinementController) writeBack(ctx context.Context, prompt string) error {
	snapshot, err := c.store.Load(ctx)
	if err != nil {
		return err
	}
	snapshot.Prompt = prompt
	snapshot.ShowRefiner = false
	return c.store.Save(ctx, snapshot)
}

// Cancel cancels the in-flight refinement.
func (c *RefinementController) Cancel() bool {
	c.mu.Lock()
	attempt, cancel := c.current, c.cancel
	c.mu.Unlock()

	if attempt == nil || !attempt.machine.cancel() {
		return false
	}
	cancel()
	return true
}
