package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

func TestExtractKeywordsRetriesMalformedOutput(t *testing.T) {
	fx := newDiagnosisFixture()
	fx.generator.script("keyword",
		generatorReply{text: "không phải danh sách"},
		generatorReply{err: errors.New("temporary")},
		generatorReply{text: "```python\n['ngứa', 'tay', 'ngứa', ' ']\n```"},
	)
	uc := fx.useCase()

	got := uc.extractKeywords(context.Background(), "ngứa ở tay")
	if strings.Join(got, ",") != "ngứa,tay" {
		t.Fatalf("unexpected keywords %v", got)
	}
	if fx.generator.callCount("keyword") != 3 {
		t.Fatalf("expected 3 attempts, got %d", fx.generator.callCount("keyword"))
	}
	if !strings.Contains(fx.generator.requests[0].UserInstruction, "ngứa ở tay") {
		t.Fatalf("prompt must include the text: %q", fx.generator.requests[0].UserInstruction)
	}
}

func TestExtractKeywordsGivesUpAfterThreeAttempts(t *testing.T) {
	fx := newDiagnosisFixture()
	fx.generator.script("keyword", generatorReply{text: "???"})
	uc := fx.useCase()

	got := uc.extractKeywords(context.Background(), "ngứa")
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
	if fx.generator.callCount("keyword") != 3 {
		t.Fatalf("expected 3 attempts, got %d", fx.generator.callCount("keyword"))
	}
}

func TestDetectQueryType(t *testing.T) {
	gen := newGeneratorFake().script("query_type",
		generatorReply{text: "something else"},
		generatorReply{text: " \"disease_causes\"\n"},
	)
	uc := NewQueryTypeUseCase(gen, testPrompts(), 3)

	got, err := uc.DetectQueryType(context.Background(), "Nguyên nhân gây vảy nến?")
	if err != nil {
		t.Fatalf("DetectQueryType() error = %v", err)
	}
	if got.QueryType != domain.QueryDiseaseCauses || got.QueryText != "Nguyên nhân gây vảy nến?" {
		t.Fatalf("unexpected classification %+v", got)
	}
}

func TestDetectQueryTypeFallsBackToUnknown(t *testing.T) {
	gen := newGeneratorFake().script("query_type", generatorReply{err: errors.New("down")})
	uc := NewQueryTypeUseCase(gen, testPrompts(), 3)

	got, err := uc.DetectQueryType(context.Background(), "xin chào")
	if err != nil {
		t.Fatalf("DetectQueryType() error = %v", err)
	}
	if got.QueryType != domain.QueryUnknown {
		t.Fatalf("expected unknown, got %s", got.QueryType)
	}
	if gen.callCount("query_type") != 3 {
		t.Fatalf("expected 3 attempts, got %d", gen.callCount("query_type"))
	}

	if _, err := uc.DetectQueryType(context.Background(), " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
