package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/docpipe/internal/arbiter"
	"github.com/valpere/docpipe/internal/translator"
)

type mockService struct {
	nameVal       string
	translateFunc func(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error)
	callCount     atomic.Int32
}

func (m *mockService) Name() string { return m.nameVal }

func (m *mockService) Translate(ctx context.Context, req translator.TranslateRequest) (*translator.ServiceResult, error) {
	m.callCount.Add(1)
	if m.translateFunc != nil {
		return m.translateFunc(ctx, req)
	}
	return &translator.ServiceResult{ServiceName: m.nameVal, TranslatedText: "mock result"}, nil
}

func (m *mockService) IsAvailable(context.Context) error { return nil }

type stubValidator struct {
	reject string
}

func (s stubValidator) IsValid(text, _ string) (bool, error) {
	if text == s.reject {
		return false, errors.New("wrong language")
	}
	return true, nil
}

var request = translator.TranslateRequest{Text: "Hello", SourceLang: "en", TargetLang: "de"}

func fastConfig(attempts int) Config {
	return Config{Timeout: 5 * time.Second, MaxAttempts: attempts, RetryDelay: time.Millisecond}
}

func TestOrchestrator_New_Defaults(t *testing.T) {
	o := New([]translator.TranslationService{&mockService{nameVal: "mock1"}}, Config{})

	if o.config.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("expected MaxAttempts=%d, got %d", DefaultMaxAttempts, o.config.MaxAttempts)
	}
	if o.config.RetryDelay <= 0 {
		t.Error("expected positive RetryDelay")
	}
	if o.validator != nil {
		t.Error("expected no validator by default")
	}
	if got := o.Services(); len(got) != 1 || got[0] != "mock1" {
		t.Errorf("Services() = %v", got)
	}
}

func TestOrchestrator_Execute_NoServices(t *testing.T) {
	o := New(nil, Config{})
	if _, err := o.Execute(context.Background(), request); !errors.Is(err, ErrNoServices) {
		t.Errorf("expected ErrNoServices, got %v", err)
	}
}

func TestOrchestrator_Execute_FirstServiceWins(t *testing.T) {
	svc1 := &mockService{nameVal: "service1"}
	svc2 := &mockService{nameVal: "service2"}
	o := New([]translator.TranslationService{svc1, svc2}, fastConfig(1))

	result, err := o.Execute(context.Background(), request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ServiceName != "service1" || !result.Validated || result.Attempts != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if svc2.callCount.Load() != 0 {
		t.Error("fallback service should not be called")
	}
}

func TestOrchestrator_Execute_FallsBack(t *testing.T) {
	svc1 := &mockService{
		nameVal: "service1",
		translateFunc: func(context.Context, translator.TranslateRequest) (*translator.ServiceResult, error) {
			return nil, errors.New("service unavailable")
		},
	}
	svc2 := &mockService{nameVal: "service2"}
	o := New([]translator.TranslationService{svc1, svc2}, fastConfig(2))

	result, err := o.Execute(context.Background(), request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ServiceName != "service2" {
		t.Errorf("expected service2, got %s", result.ServiceName)
	}
	if svc1.callCount.Load() != 2 {
		t.Errorf("expected 2 attempts on service1, got %d", svc1.callCount.Load())
	}
	if result.Attempts != 3 || len(result.Errors) != 2 {
		t.Errorf("expected 3 attempts and 2 errors, got %d and %d", result.Attempts, len(result.Errors))
	}
}

func TestOrchestrator_Execute_WithRetry(t *testing.T) {
	var calls atomic.Int32
	svc := &mockService{
		nameVal: "retryable",
		translateFunc: func(context.Context, translator.TranslateRequest) (*translator.ServiceResult, error) {
			if calls.Add(1) < 3 {
				return &translator.ServiceResult{ServiceName: "retryable", Error: "temporary failure"}, nil
			}
			return &translator.ServiceResult{ServiceName: "retryable", TranslatedText: "success on 3rd attempt"}, nil
		},
	}
	o := New([]translator.TranslationService{svc}, fastConfig(3))

	result, err := o.Execute(context.Background(), request)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TranslatedText != "success on 3rd attempt" {
		t.Errorf("unexpected text %q", result.TranslatedText)
	}
	if svc.callCount.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", svc.callCount.Load())
	}
}

func TestOrchestrator_Execute_NoRetryWithoutAPIKey(t *testing.T) {
	svc := &mockService{
		nameVal: "keyless",
		translateFunc: func(context.Context, translator.TranslateRequest) (*translator.ServiceResult, error) {
			return nil, translator.ErrEmptyAPIKey
		},
	}
	o := New([]translator.TranslationService{svc}, fastConfig(3))

	_, err := o.Execute(context.Background(), request)
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, translator.ErrEmptyAPIKey) {
		t.Errorf("expected ErrAllFailed wrapping ErrEmptyAPIKey, got %v", err)
	}
	if svc.callCount.Load() != 1 {
		t.Errorf("expected a single call, got %d", svc.callCount.Load())
	}
}

func TestOrchestrator_Execute_AllFailed(t *testing.T) {
	svc := &mockService{
		nameVal: "failing",
		translateFunc: func(context.Context, translator.TranslateRequest) (*translator.ServiceResult, error) {
			return nil, errors.New("always fails")
		},
	}
	o := New([]translator.TranslationService{svc}, fastConfig(2))

	result, err := o.Execute(context.Background(), request)
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("expected ErrAllFailed, got %v", err)
	}
	if result != nil {
		t.Error("expected nil result")
	}
	if !strings.Contains(err.Error(), "always fails") {
		t.Errorf("expected underlying errors in message, got %v", err)
	}
}

func TestOrchestrator_Execute_Validation(t *testing.T) {
	bad := &mockService{
		nameVal: "bad",
		translateFunc: func(context.Context, translator.TranslateRequest) (*translator.ServiceResult, error) {
			return &translator.ServiceResult{ServiceName: "bad", TranslatedText: "wrong"}, nil
		},
	}
	good := &mockService{nameVal: "good"}

	t.Run("falls back to a valid translation", func(t *testing.T) {
		o := New([]translator.TranslationService{bad, good}, fastConfig(1), WithValidator(stubValidator{reject: "wrong"}))
		result, err := o.Execute(context.Background(), request)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ServiceName != "good" || !result.Validated {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("returns last result when nothing validates", func(t *testing.T) {
		o := New([]translator.TranslationService{bad}, fastConfig(2), WithValidator(stubValidator{reject: "wrong"}))
		result, err := o.Execute(context.Background(), request)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Validated || result.TranslatedText != "wrong" || result.Attempts != 2 {
			t.Errorf("unexpected result %+v", result)
		}
	})
}

func TestOrchestrator_Execute_Cancellation(t *testing.T) {
	svc := &mockService{nameVal: "never"}
	o := New([]translator.TranslationService{svc}, fastConfig(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Execute(ctx, request); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if svc.callCount.Load() != 0 {
		t.Error("service should not be called with a cancelled context")
	}
}

func TestOrchestrator_Execute_RetryDelayHonoursContext(t *testing.T) {
	svc := &mockService{
		nameVal: "slow",
		translateFunc: func(context.Context, translator.TranslateRequest) (*translator.ServiceResult, error) {
			return nil, errors.New("boom")
		},
	}
	o := New([]translator.TranslationService{svc}, Config{MaxAttempts: 3, RetryDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := o.Execute(ctx, request)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("retry delay ignored the context")
	}
}

type stubArbiter struct {
	result *arbiter.EvaluationResult
	err    error
	seen   []translator.ServiceResult
}

func (s *stubArbiter) Evaluate(_ context.Context, _, _, _ string, results []translator.ServiceResult) (*arbiter.EvaluationResult, error) {
	s.seen = results
	return s.result, s.err
}

func textService(name, text string) *mockService {
	return &mockService{
		nameVal: name,
		translateFunc: func(context.Context, translator.TranslateRequest) (*translator.ServiceResult, error) {
			return &translator.ServiceResult{ServiceName: name, TranslatedText: text}, nil
		},
	}
}

func TestOrchestrator_Execute_Arbiter(t *testing.T) {
	failing := &mockService{
		nameVal: "failing",
		translateFunc: func(context.Context, translator.TranslateRequest) (*translator.ServiceResult, error) {
			return nil, errors.New("down")
		},
	}
	services := func() []translator.TranslationService {
		return []translator.TranslationService{textService("one", "Hallo da"), failing, textService("two", "Hallo dort")}
	}

	t.Run("selects a candidate", func(t *testing.T) {
		arb := &stubArbiter{result: &arbiter.EvaluationResult{SelectedService: "two", Reasoning: "natural"}}
		o := New(services(), fastConfig(1), WithArbiter(arb))

		result, err := o.Execute(context.Background(), request)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ServiceName != "two" || result.TranslatedText != "Hallo dort" {
			t.Errorf("unexpected result %+v", result)
		}
		if result.Candidates != 2 || len(arb.seen) != 2 || result.Reasoning != "natural" {
			t.Errorf("unexpected arbitration %+v", result)
		}
		if len(result.Errors) != 1 {
			t.Errorf("expected the failing service's error, got %v", result.Errors)
		}
	})

	t.Run("composite", func(t *testing.T) {
		arb := &stubArbiter{result: &arbiter.EvaluationResult{
			SelectedService: arbiter.Composite, IsComposite: true, CompositeText: " Hallo zusammen ",
		}}
		o := New(services(), fastConfig(1), WithArbiter(arb))

		result, err := o.Execute(context.Background(), request)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ServiceName != arbiter.Composite || result.TranslatedText != "Hallo zusammen" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("invalid composite keeps the first candidate", func(t *testing.T) {
		arb := &stubArbiter{result: &arbiter.EvaluationResult{
			SelectedService: arbiter.Composite, IsComposite: true, CompositeText: "wrong",
		}}
		o := New(services(), fastConfig(1), WithArbiter(arb), WithValidator(stubValidator{reject: "wrong"}))

		result, err := o.Execute(context.Background(), request)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ServiceName != "one" {
			t.Errorf("expected first candidate, got %+v", result)
		}
	})

	t.Run("arbiter failure keeps the first candidate", func(t *testing.T) {
		arb := &stubArbiter{err: errors.New("model offline")}
		o := New(services(), fastConfig(1), WithArbiter(arb))

		result, err := o.Execute(context.Background(), request)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ServiceName != "one" {
			t.Errorf("expected first candidate, got %+v", result)
		}
		if !strings.Contains(errors.Join(result.Errors...).Error(), "model offline") {
			t.Errorf("arbiter error not recorded: %v", result.Errors)
		}
	})

	t.Run("unknown selection keeps the first candidate", func(t *testing.T) {
		arb := &stubArbiter{result: &arbiter.EvaluationResult{SelectedService: "systran"}}
		o := New(services(), fastConfig(1), WithArbiter(arb))

		result, err := o.Execute(context.Background(), request)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.ServiceName != "one" {
			t.Errorf("expected first candidate, got %+v", result)
		}
	})
}
