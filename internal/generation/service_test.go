package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"onecam/internal/domain"
	"onecam/internal/engine"
)

type stubSubmitter struct {
	calls int
	docs  []domain.JobDocument
	err   error
}

func (s *stubSubmitter) QueuePrompt(_ context.Context, doc domain.JobDocument) (domain.JobHandle, error) {
	s.calls++
	s.docs = append(s.docs, doc)
	if s.err != nil {
		return domain.JobHandle{}, s.err
	}
	return domain.JobHandle{PromptID: fmt.Sprintf("job-%d", s.calls)}, nil
}

type stubAwaiter struct {
	files []string
	err   error
}

func (s *stubAwaiter) Await(context.Context, domain.JobHandle) ([]string, error) {
	return s.files, s.err
}

type memLedger struct {
	created  []domain.JobRecord
	finished map[string]domain.JobStatus
	fail     bool
}

func (m *memLedger) Create(_ context.Context, rec *domain.JobRecord) error {
	if m.fail {
		return errors.New("db down")
	}
	rec.ID = fmt.Sprintf("rec-%d", len(m.created)+1)
	m.created = append(m.created, *rec)
	return nil
}

func (m *memLedger) Finish(_ context.Context, id string, status domain.JobStatus, _ []string, _ string) error {
	if m.finished == nil {
		m.finished = map[string]domain.JobStatus{}
	}
	m.finished[id] = status
	return nil
}

func (m *memLedger) ListRecent(context.Context, int) ([]domain.JobRecord, error) {
	return m.created, nil
}

func newTestService(t *testing.T, sub Submitter, aw Awaiter, ledger domain.JobLedger) (*Service, string) {
	t.Helper()
	tmpl, err := engine.DefaultTemplate()
	if err != nil {
		t.Fatalf("DefaultTemplate error: %v", err)
	}
	out := filepath.Join(t.TempDir(), "ComfyUI", "output")
	svc, err := NewService(Config{Template: tmpl, Submitter: sub, Awaiter: aw, Ledger: ledger, OutputDir: out, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	return svc, out
}

func nodeInput(t *testing.T, doc domain.JobDocument, node, input string) any {
	t.Helper()
	n, ok := doc[node].(map[string]any)
	if !ok {
		t.Fatalf("node %s missing", node)
	}
	inputs, ok := n["inputs"].(map[string]any)
	if !ok {
		t.Fatalf("node %s has no inputs", node)
	}
	return inputs[input]
}

func TestGenerateSuccess(t *testing.T) {
	sub := &stubSubmitter{}
	ledger := &memLedger{}
	svc, out := newTestService(t, sub, &stubAwaiter{files: []string{"foo.png"}}, ledger)

	res, err := svc.Generate(context.Background(), Request{Prompt: "  a cafe\u0301 at dusk ", ImagePath: "/img/input/cam.png"})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.PromptID != "job-1" || len(res.Images) != 1 || res.Images[0] != "foo.png" || res.OutputDir != out {
		t.Fatalf("unexpected result: %+v", res)
	}
	if info, err := os.Stat(out); err != nil || !info.IsDir() {
		t.Fatalf("output directory should exist: %v", err)
	}

	doc := sub.docs[0]
	if got := nodeInput(t, doc, "6", "text"); got != "a caf\u00e9 at dusk" {
		t.Fatalf("prompt not normalized into node 6: %#v", got)
	}
	if got := nodeInput(t, doc, "13", "image"); got != "cam.png" {
		t.Fatalf("image name not bound into node 13: %#v", got)
	}
	if ledger.finished["rec-1"] != domain.JobStatusSucceeded {
		t.Fatalf("ledger not finished: %#v", ledger.finished)
	}
}

func TestGenerateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want error
	}{
		{name: "missing prompt", req: Request{ImagePath: "a.png"}, want: domain.ErrPromptRequired},
		{name: "blank prompt", req: Request{Prompt: "   ", ImagePath: "a.png"}, want: domain.ErrPromptRequired},
		{name: "missing image", req: Request{Prompt: "p"}, want: domain.ErrImagePathRequired},
		{name: "trailing slash", req: Request{Prompt: "p", ImagePath: "/img/input/"}, want: domain.ErrImagePathRequired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sub := &stubSubmitter{}
			svc, _ := newTestService(t, sub, &stubAwaiter{}, nil)
			if _, err := svc.Generate(context.Background(), tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if sub.calls != 0 {
				t.Fatalf("engine must not be called on invalid input")
			}
		})
	}
}

func TestGenerateEngineFailures(t *testing.T) {
	t.Run("queue", func(t *testing.T) {
		sub := &stubSubmitter{err: fmt.Errorf("%w: connection refused", domain.ErrEngineUnavailable)}
		svc, _ := newTestService(t, sub, &stubAwaiter{}, nil)
		if _, err := svc.Generate(context.Background(), Request{Prompt: "p", ImagePath: "a.png"}); !errors.Is(err, domain.ErrEngineUnavailable) {
			t.Fatalf("expected engine error, got %v", err)
		}
	})
	t.Run("no images", func(t *testing.T) {
		ledger := &memLedger{}
		svc, _ := newTestService(t, &stubSubmitter{}, &stubAwaiter{err: domain.ErrNoImages}, ledger)
		if _, err := svc.Generate(context.Background(), Request{Prompt: "p", ImagePath: "a.png"}); !errors.Is(err, domain.ErrNoImages) {
			t.Fatalf("expected no images, got %v", err)
		}
		if ledger.finished["rec-1"] != domain.JobStatusNoImages {
			t.Fatalf("ledger status mismatch: %#v", ledger.finished)
		}
	})
}

func TestGenerateIgnoresLedgerFailure(t *testing.T) {
	ledger := &memLedger{fail: true}
	svc, _ := newTestService(t, &stubSubmitter{}, &stubAwaiter{files: []string{"x.png"}}, ledger)
	if _, err := svc.Generate(context.Background(), Request{Prompt: "p", ImagePath: "a.png"}); err != nil {
		t.Fatalf("ledger failure must not fail the request: %v", err)
	}
	if len(ledger.finished) != 0 {
		t.Fatalf("finish must be skipped when create failed")
	}
}

func TestImageName(t *testing.T) {
	tests := map[string]string{
		"/img/input/cam.png":   "cam.png",
		"cam.png":              "cam.png",
		`C:\uploads\shot.jpg`:  "shot.jpg",
		"":                     "",
		"dir/":                 "",
		" /a/b/with space.png": "with space.png",
	}
	for in, want := range tests {
		if got := ImageName(in); got != want {
			t.Fatalf("ImageName(%q) = %q, want %q", in, got, want)
		}
	}
}
