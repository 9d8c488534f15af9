package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/unicode/norm"

	"onecam/internal/domain"
	"onecam/internal/engine"
)

// Submitter queues a job document on the engine.
type Submitter interface {
	QueuePrompt(ctx context.Context, doc domain.JobDocument) (domain.JobHandle, error)
}

// Awaiter returns the images a queued job produced.
type Awaiter interface {
	Await(ctx context.Context, handle domain.JobHandle) ([]string, error)
}

// Request is one image-to-image generation request.
type Request struct {
	Prompt    string `json:"prompt"`
	ImagePath string `json:"image_path"`
}

// Result describes a completed generation.
type Result struct {
	PromptID  string   `json:"prompt_id"`
	Images    []string `json:"images"`
	OutputDir string   `json:"output_dir"`
}

// Config wires a Service.
type Config struct {
	Template  *engine.Template
	Submitter Submitter
	Awaiter   Awaiter
	Ledger    domain.JobLedger
	OutputDir string
	Logger    zerolog.Logger
}

// Service runs validate, submit and poll for one request at a time; it holds
// no per-request state.
type Service struct {
	template  *engine.Template
	submitter Submitter
	awaiter   Awaiter
	ledger    domain.JobLedger
	outputDir string
	logger    zerolog.Logger
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Template == nil {
		return nil, errors.New("generation: template is required")
	}
	if cfg.Submitter == nil || cfg.Awaiter == nil {
		return nil, errors.New("generation: engine client is required")
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		return nil, errors.New("generation: output directory is required")
	}
	return &Service{
		template:  cfg.Template,
		submitter: cfg.Submitter,
		awaiter:   cfg.Awaiter,
		ledger:    cfg.Ledger,
		outputDir: cfg.OutputDir,
		logger:    cfg.Logger,
	}, nil
}

// Generate submits req to the engine and waits for its images. Errors wrap
// domain.ErrPromptRequired, domain.ErrImagePathRequired,
// domain.ErrEngineUnavailable, domain.ErrNoResult or domain.ErrNoImages.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	prompt := norm.NFC.String(strings.TrimSpace(req.Prompt))
	if prompt == "" {
		return nil, domain.ErrPromptRequired
	}
	image := ImageName(req.ImagePath)
	if image == "" {
		return nil, domain.ErrImagePathRequired
	}

	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: ensure output directory: %v", domain.ErrEngineUnavailable, err)
	}

	doc, err := s.template.Build(map[string]string{
		engine.VarPrompt: prompt,
		engine.VarImage:  image,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: build job: %v", domain.ErrEngineUnavailable, err)
	}

	handle, err := s.submitter.QueuePrompt(ctx, doc)
	if err != nil {
		s.logger.Error().Err(err).Str("image", image).Msg("queue prompt failed")
		return nil, err
	}
	log := s.logger.With().Str("prompt_id", handle.PromptID).Logger()
	log.Info().Str("image", image).Msg("job queued")

	rec := &domain.JobRecord{PromptID: handle.PromptID, Prompt: prompt, Image: image, Status: domain.JobStatusQueued}
	s.record(ctx, log, rec)

	files, err := s.awaiter.Await(ctx, handle)
	if err != nil {
		status := domain.JobStatusFailed
		if errors.Is(err, domain.ErrNoImages) || errors.Is(err, domain.ErrNoResult) {
			status = domain.JobStatusNoImages
		}
		log.Warn().Err(err).Msg("no images produced")
		s.finish(ctx, log, rec, status, nil, err.Error())
		return nil, err
	}

	log.Info().Strs("images", files).Msg("images generated")
	s.finish(ctx, log, rec, domain.JobStatusSucceeded, files, "")
	return &Result{PromptID: handle.PromptID, Images: files, OutputDir: s.outputDir}, nil
}

// The ledger is an audit trail; its failures are logged and never change the
// outcome of a request.
func (s *Service) record(ctx context.Context, log zerolog.Logger, rec *domain.JobRecord) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Create(ctx, rec); err != nil {
		log.Warn().Err(err).Msg("ledger create failed")
		rec.ID = ""
	}
}

func (s *Service) finish(ctx context.Context, log zerolog.Logger, rec *domain.JobRecord, status domain.JobStatus, files []string, msg string) {
	if s.ledger == nil || rec.ID == "" {
		return
	}
	if err := s.ledger.Finish(context.WithoutCancel(ctx), rec.ID, status, files, msg); err != nil {
		log.Warn().Err(err).Msg("ledger finish failed")
	}
}

// ImageName returns the final segment of a slash- or backslash-separated path.
func ImageName(path string) string {
	path = strings.TrimSpace(path)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	return path
}
