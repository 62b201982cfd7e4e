package usecase

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

func TestGetContextRejectsEmptyInput(t *testing.T) {
	fx := newDiagnosisFixture()
	uc := fx.useCase()

	_, err := uc.GetContext(context.Background(), domain.DiagnosisInput{Text: "   "})
	if !errors.Is(err, domain.ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
	if fx.retrievalCalls() != 0 || len(fx.generator.requests) != 0 {
		t.Fatalf("expected no work before validation")
	}
}

func TestGetContextTextWithoutSignalsReturnsEmptyRanking(t *testing.T) {
	fx := newDiagnosisFixture()
	fx.generator.script("keyword", generatorReply{text: "```python\n[]\n```"})
	uc := fx.useCase()

	result, err := uc.GetContext(context.Background(), domain.DiagnosisInput{Text: "tôi thấy hơi mệt"})
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	if len(result.Labels) != 0 || len(result.Documents) != 0 {
		t.Fatalf("expected empty ranking, got %+v", result)
	}
	if result.Mode != domain.ModeText {
		t.Fatalf("expected text mode, got %s", result.Mode)
	}
	if fx.keywords.callCount() != 0 || fx.graph.calls != 0 {
		t.Fatalf("keyword index and graph must not be queried without keywords")
	}
	if len(fx.events.events) != 1 || fx.events.events[0].Kind != domain.EventKindContext {
		t.Fatalf("expected one context event, got %+v", fx.events.events)
	}
}

func TestGetContextToleratesFailingSources(t *testing.T) {
	fx := newDiagnosisFixture()
	fx.generator.script("keyword", generatorReply{text: "['ngứa']"})
	fx.documents.err = errors.New("document store down")
	fx.keywords.retrieve = func(keywords []string, entityType domain.EntityType) (domain.KeywordMatches, error) {
		if entityType != domain.EntityDisease {
			return domain.KeywordMatches{}, errors.New("keyword index timeout")
		}
		return domain.KeywordMatches{
			Keywords: keywords,
			Matches: map[string][]domain.KeywordMatch{
				"ngứa": {{Entity: "d1", Type: domain.EntityDisease, Docs: []string{"Cham_eczema.txt"}, Distance: 0.1}},
			},
		}, nil
	}
	uc := fx.useCase()

	result, err := uc.GetContext(context.Background(), domain.DiagnosisInput{Text: "ngứa ở tay"})
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	if len(result.Labels) != 1 || result.Labels[0].Label != "Cham eczema" {
		t.Fatalf("unexpected labels: %+v", result.Labels)
	}
	if math.Abs(result.Labels[0].Score-1) > 1e-9 {
		t.Fatalf("expected single label softmax 1, got %v", result.Labels[0].Score)
	}
	want := "Không tìm thấy thông tin chi tiết về bệnh Cham eczema"
	if len(result.Documents) != 1 || result.Documents[0][0] != want {
		t.Fatalf("expected placeholder evidence, got %+v", result.Documents)
	}
}

func TestGetContextGraphRequeriesMostFrequentDiseases(t *testing.T) {
	fx := newDiagnosisFixture()
	fx.generator.script("keyword", generatorReply{text: `["ngứa", "tay"]`})
	fx.graph.edges = map[string][]domain.GraphEdge{
		"s1": {{SubjectName: "Vảy nến", ObjectName: "ngứa"}, {SubjectName: "Chàm", ObjectName: "ngứa"}},
		"a1": {{SubjectName: "Chàm", ObjectName: "tay"}},
	}
	fx.keywords.retrieve = func(keywords []string, entityType domain.EntityType) (domain.KeywordMatches, error) {
		switch entityType {
		case domain.EntitySymptom:
			return domain.KeywordMatches{Keywords: keywords, Matches: map[string][]domain.KeywordMatch{
				"ngứa": {{Entity: "s1", Type: domain.EntitySymptom, Distance: 0.1}},
			}}, nil
		case domain.EntityAnatomy:
			return domain.KeywordMatches{Keywords: keywords, Matches: map[string][]domain.KeywordMatch{
				"tay": {{Entity: "a1", Type: domain.EntityAnatomy, Distance: 0.1}},
			}}, nil
		}
		if len(keywords) > 0 && keywords[0] == "Chàm" {
			return domain.KeywordMatches{Keywords: keywords, Matches: map[string][]domain.KeywordMatch{
				"Chàm":    {{Entity: "Cham", Docs: []string{"Cham.txt"}, Distance: 0.05}},
				"Vảy nến": {{Entity: "Vay_nen", Docs: []string{"Vay_nen.txt"}, Distance: 0.1}},
			}}, nil
		}
		return domain.KeywordMatches{Keywords: keywords, Matches: map[string][]domain.KeywordMatch{}}, nil
	}
	uc := fx.useCase()

	result, err := uc.GetContext(context.Background(), domain.DiagnosisInput{Text: "ngứa ở tay"})
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}

	var lookup []string
	for _, call := range fx.keywords.calls {
		if call.entityType == domain.EntityDisease && len(call.keywords) > 0 && call.keywords[0] == "Chàm" {
			lookup = call.keywords
		}
	}
	if strings.Join(lookup, ",") != "Chàm,Vảy nến" {
		t.Fatalf("expected diseases ordered by frequency, got %v", lookup)
	}
	if got := strings.Join(result.Labels.Labels(), ","); got != "Cham,Vay nen" {
		t.Fatalf("unexpected ranking %s", got)
	}
}

func TestGetContextImagePipelineFusesVisualAndDocuments(t *testing.T) {
	fx := newDiagnosisFixture()
	fx.generator.script("caption", generatorReply{text: "mảng đỏ có vảy"})
	fx.generator.script("keyword", generatorReply{text: "['mảng đỏ']"})
	fx.visual.hits = []domain.VisualHit{
		{ID: "1", Label: "Psoriasis (vảy nến)", Distance: 0.1},
		{ID: "2", Label: "Psoriasis (x)", Distance: 0.2},
		{ID: "3", Label: "Eczema", Distance: 0.3},
	}
	fx.documents.hits = []domain.DocumentHit{{Disease: "Psoriasis", Distance: 0.2}}
	fx.taxonomy.descriptions["Psoriasis"] = []domain.DiseaseDescription{{Label: "Psoriasis", Description: ""}}
	uc := fx.useCase()

	result, err := uc.GetContext(context.Background(), domain.DiagnosisInput{Images: [][]byte{[]byte("img")}})
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	if got := strings.Join(result.Labels.Labels(), ","); got != "Psoriasis,Eczema" {
		t.Fatalf("unexpected ranking %s", got)
	}
	if result.Labels[0].Score <= result.Labels[1].Score {
		t.Fatalf("expected descending scores, got %+v", result.Labels)
	}
	if len(fx.documents.queries) != 1 || fx.documents.queries[0] != "mảng đỏ có vảy" {
		t.Fatalf("expected documents queried by caption, got %v", fx.documents.queries)
	}
	if result.Documents[0][0] != "Thông tin về bệnh Psoriasis" {
		t.Fatalf("expected empty description placeholder, got %q", result.Documents[0][0])
	}
	if fx.generator.callCount("caption") != 1 {
		t.Fatalf("expected one caption call")
	}
}

func TestGetContextFusionRunsBothPipelines(t *testing.T) {
	fx := newDiagnosisFixture()
	fx.generator.script("caption", generatorReply{text: "tổn thương đỏ"})
	fx.generator.script("keyword", generatorReply{text: "[]"})
	fx.visual.hits = []domain.VisualHit{{ID: "1", Label: "Psoriasis", Distance: 0.1}}
	uc := fx.useCase()

	result, err := uc.GetContext(context.Background(), domain.DiagnosisInput{
		Text:   "ngứa",
		Images: [][]byte{[]byte("img")},
	})
	if err != nil {
		t.Fatalf("GetContext() error = %v", err)
	}
	if result.Mode != domain.ModeFusion {
		t.Fatalf("expected fusion mode, got %s", result.Mode)
	}
	if len(result.Labels) != 1 || result.Labels[0].Label != "Psoriasis" {
		t.Fatalf("unexpected labels %+v", result.Labels)
	}
	if fx.generator.callCount("keyword") != 2 {
		t.Fatalf("expected keyword extraction for caption and text, got %d", fx.generator.callCount("keyword"))
	}
}

func TestGetDiagnosisNarratesEvidence(t *testing.T) {
	fx := newDiagnosisFixture()
	fx.generator.script("keyword", generatorReply{text: "['ngứa']"})
	fx.generator.script("reasoning", generatorReply{text: "**Suy luận:** ...\n**Chẩn đoán:** Cham eczema"})
	fx.keywords.retrieve = func(keywords []string, entityType domain.EntityType) (domain.KeywordMatches, error) {
		if entityType != domain.EntityDisease {
			return domain.KeywordMatches{}, nil
		}
		return domain.KeywordMatches{Keywords: keywords, Matches: map[string][]domain.KeywordMatch{
			"ngứa": {{Entity: "d1", Docs: []string{"Cham_eczema.txt"}, Distance: 0.1}},
		}}, nil
	}
	fx.taxonomy.descriptions["Cham eczema"] = []domain.DiseaseDescription{{Label: "Cham eczema", Description: "Viêm da cơ địa"}}
	uc := fx.useCase()

	result, err := uc.GetDiagnosis(context.Background(), domain.DiagnosisInput{Text: "ngứa ở tay"})
	if err != nil {
		t.Fatalf("GetDiagnosis() error = %v", err)
	}
	if result.Stage != domain.StageTerminal {
		t.Fatalf("expected terminal stage, got %s", result.Stage)
	}
	if !strings.Contains(result.Response, "Chẩn đoán") {
		t.Fatalf("unexpected response %q", result.Response)
	}

	var reasoning domain.GenerationRequest
	for _, req := range fx.generator.requests {
		if req.SystemInstruction == "reasoning" {
			reasoning = req
		}
	}
	if reasoning.MaxTokens != 10000 || len(reasoning.Images) != 0 {
		t.Fatalf("unexpected reasoning request %+v", reasoning)
	}
	for _, want := range []string{"text:\nngứa ở tay", "**Tên bệnh:** Cham eczema", "Viêm da cơ địa"} {
		if !strings.Contains(reasoning.UserInstruction, want) {
			t.Fatalf("reasoning prompt missing %q: %s", want, reasoning.UserInstruction)
		}
	}
	if len(fx.events.events) != 1 || fx.events.events[0].Kind != domain.EventKindAnalyze {
		t.Fatalf("expected analyze event, got %+v", fx.events.events)
	}
}

func TestGetDiagnosisPropagatesBackendExhaustion(t *testing.T) {
	fx := newDiagnosisFixture()
	fx.generator.script("keyword", generatorReply{text: "[]"})
	fx.generator.script("reasoning", generatorReply{err: &domain.AllBackendsFailedError{
		Failures: []domain.BackendFailure{{Provider: "gemini", Credential: "AIzaSyAB***", Model: "m", Message: "quota"}},
	}})
	uc := fx.useCase()

	_, err := uc.GetDiagnosis(context.Background(), domain.DiagnosisInput{Text: "ngứa"})
	if !errors.Is(err, domain.ErrAllBackendsFailed) {
		t.Fatalf("expected ErrAllBackendsFailed, got %v", err)
	}
	if len(fx.events.events) != 0 {
		t.Fatalf("no event expected on failure")
	}
}
