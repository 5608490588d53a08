// Package generate runs one image generation attempt end to end: validate,
// build, dispatch, normalise, download and persist.
package generate

import (
	"context"
	"strings"
	"time"

	"github.com/BaSui01/renderflow/artifact"
	"github.com/BaSui01/renderflow/imaging"
	"github.com/BaSui01/renderflow/internal/ctxkeys"
	"github.com/BaSui01/renderflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/renderflow/generate"

// Stage is a step of the generation state machine.
type Stage string

const (
	StageIdle             Stage = "idle"
	StageValidating       Stage = "validating"
	StageDispatching      Stage = "dispatching"
	StageAwaitingProvider Stage = "awaiting_provider"
	StageDownloading      Stage = "downloading"
	StagePersisting       Stage = "persisting"
	StageDone             Stage = "done"
	StageCancelled        Stage = "cancelled"
	StageFailed           Stage = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageCancelled || s == StageFailed
}

// ProgressFunc observes stage transitions of a running attempt.
type ProgressFunc func(Stage)

// Request is one generation attempt.
type Request struct {
	Model          imaging.ModelID
	Prompt         string
	NegativePrompt string
	Image          *imaging.SourceImage
	// Settings must belong to Model; nil means no tunables.
	Settings imaging.ModelSettings
}

// Result is what the caller observes after a successful attempt.
type Result struct {
	ImageURL         string             `json:"imageUrl"`
	SavedPath        string             `json:"savedPath"`
	FileName         string             `json:"fileName"`
	Label            string             `json:"label"`
	LabelIndex       int                `json:"labelIndex"`
	Model            imaging.ModelID    `json:"model"`
	Seed             *int64             `json:"seed,omitempty"`
	SourceDimensions imaging.Dimensions `json:"sourceDimensions"`
}

// Provider is the image service.
type Provider interface {
	Adapter() *imaging.Adapter
	Dispatch(ctx context.Context, req *imaging.ProviderRequest) ([]byte, error)
	Download(ctx context.Context, url string) (*imaging.Download, error)
}

// ArtifactStore persists downloaded images.
type ArtifactStore interface {
	Save(ctx context.Context, in artifact.SaveInput) (*artifact.Artifact, error)
}

// Recorder receives pipeline metrics. *metrics.Collector implements it.
type Recorder interface {
	RecordGeneration(model, outcome string)
	RecordProviderRequest(model string, duration time.Duration)
	RecordArtifact(label string, bytes int)
}

type nopRecorder struct{}

func (nopRecorder) RecordGeneration(string, string)             {}
func (nopRecorder) RecordProviderRequest(string, time.Duration) {}
func (nopRecorder) RecordArtifact(string, int)                  {}

// Pipeline executes generation attempts. It holds no per-attempt state and
// may run attempts from different sessions concurrently.
type Pipeline struct {
	provider Provider
	store    ArtifactStore
	recorder Recorder
	tracer   trace.Tracer
	inflight metric.Int64UpDownCounter
	logger   *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		if r != nil {
			p.recorder = r
		}
	}
}

// NewPipeline creates a pipeline.
func NewPipeline(provider Provider, store ArtifactStore, logger *zap.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pipeline{
		provider: provider,
		store:    store,
		recorder: nopRecorder{},
		tracer:   otel.Tracer(instrumentationName),
		logger:   logger.With(zap.String("component", "generate_pipeline")),
	}
	inflight, err := otel.Meter(instrumentationName).Int64UpDownCounter("renderflow.generation.inflight",
		metric.WithDescription("Generation attempts currently running"),
		metric.WithUnit("{attempt}"))
	if err == nil {
		p.inflight = inflight
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Configured reports whether the provider holds credentials. A provider that
// cannot tell counts as configured.
func (p *Pipeline) Configured() bool {
	c, ok := p.provider.(interface{ Configured() bool })
	return !ok || c.Configured()
}

// Validate checks the caller-side readiness rules without any I/O.
func Validate(req *Request) error {
	if req == nil {
		return types.NewInvalidRequestError("request is required")
	}
	if !req.Model.Valid() {
		return types.NewError(types.ErrUnsupportedModel, "model '"+string(req.Model)+"' is not supported")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return types.NewInvalidRequestError("prompt is required")
	}
	if err := imaging.ValidateSourceImage(req.Image); err != nil {
		return err
	}
	if req.Settings != nil {
		if err := imaging.ValidateSettings(req.Settings); err != nil {
			return err
		}
	}
	return nil
}

// Run executes one attempt. Stages are reported through progress in order;
// cancellation is observed after every suspension point. Once persisting has
// begun the write completes, but a cancelled context still yields CANCELLED.
func (p *Pipeline) Run(ctx context.Context, req *Request, progress ProgressFunc) (res *Result, err error) {
	if progress == nil {
		progress = func(Stage) {}
	}
	model := ""
	if req != nil {
		model = string(req.Model)
	}

	ctx, span := p.tracer.Start(ctx, "generate.run", trace.WithAttributes(
		attribute.String("renderflow.model", model),
	))
	if p.inflight != nil {
		p.inflight.Add(ctx, 1)
	}
	defer func() {
		if p.inflight != nil {
			p.inflight.Add(context.WithoutCancel(ctx), -1)
		}
		outcome := outcomeOf(err)
		p.recorder.RecordGeneration(model, outcome)
		span.SetAttributes(attribute.String("renderflow.outcome", outcome))
		if err != nil && outcome == "failed" {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	progress(StageValidating)
	if err := Validate(req); err != nil {
		return nil, err
	}
	dims := imaging.ReadDimensions(req.Image.Data)
	settings := req.Settings
	if settings == nil {
		settings, _ = imaging.EmptySettings(req.Model)
	}

	progress(StageDispatching)
	providerReq, err := p.provider.Adapter().BuildRequest(req.Model, req.Prompt, req.NegativePrompt, req.Image.DataURI(), settings)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, types.NewCancelledError(err)
	}

	progress(StageAwaitingProvider)
	start := time.Now()
	raw, err := p.provider.Dispatch(ctx, providerReq)
	p.recorder.RecordProviderRequest(model, time.Since(start))
	if cerr := ctx.Err(); cerr != nil {
		return nil, types.NewCancelledError(cerr)
	}
	if err != nil {
		return nil, err
	}

	ref, err := imaging.ExtractImageReference(raw)
	if err != nil {
		p.logger.Error("provider response has no image",
			zap.String("model", model),
			zap.ByteString("raw", raw),
		)
		return nil, err
	}
	span.AddEvent("image_reference", trace.WithAttributes(attribute.String("renderflow.probe", string(ref.Rule))))

	progress(StageDownloading)
	dl, err := p.provider.Download(ctx, ref.URL)
	if cerr := ctx.Err(); cerr != nil {
		return nil, types.NewCancelledError(cerr)
	}
	if err != nil {
		return nil, err
	}

	progress(StagePersisting)
	saved, err := p.store.Save(ctx, artifact.SaveInput{
		Label:       req.Model.Label(),
		ModelID:     model,
		Seed:        settings.SeedValue(),
		ContentType: dl.ContentType,
		SourceURL:   ref.URL,
		Data:        dl.Data,
	})
	if err != nil {
		return nil, err
	}
	p.recorder.RecordArtifact(saved.Label, saved.Size)
	if cerr := ctx.Err(); cerr != nil {
		p.logger.Info("attempt cancelled after persisting", zap.String("file", saved.FileName))
		return nil, types.NewCancelledError(cerr)
	}

	p.logger.Info("generation completed", append(ctxkeys.Fields(ctx),
		zap.String("model", model),
		zap.String("file", saved.FileName),
		zap.Stringer("source", dims),
	)...)

	return &Result{
		ImageURL:         ref.URL,
		SavedPath:        saved.Path,
		FileName:         saved.FileName,
		Label:            saved.Label,
		LabelIndex:       saved.Index,
		Model:            req.Model,
		Seed:             saved.Seed,
		SourceDimensions: dims,
	}, nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "done"
	case types.IsErrorCode(err, types.ErrCancelled):
		return "cancelled"
	default:
		return "failed"
	}
}
