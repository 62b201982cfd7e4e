package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

func testPrompts() domain.PromptCatalog {
	return domain.PromptCatalog{
		KeywordSystem:    "keyword",
		KeywordUser:      "keywords for: {{.Text}}",
		QueryTypeSystem:  "query_type",
		QueryTypeUser:    "classify: {{.Text}}",
		CaptionSystem:    "caption",
		CaptionUser:      "describe the image",
		ReasoningSystem:  "reasoning",
		ReasoningUser:    "{{.HasText}}|{{.HasImage}}|{{.RelatedData}}",
		ReasoningHasText: "text:",
		ReasoningHasImg:  "image attached",
		ShortlistSystem:  "shortlist",
		ShortlistUser:    "pick {{.TopK}} from {{.Labels}}",
		FirstStageSystem: "first_stage",
		FirstStageUser:   "{{.HasText}}|{{.HasImage}}|{{.RelatedData}}",
		FollowUpSystem:   "follow_up",
		FollowUpUser:     "follow-up: {{.Text}}",
	}
}

type generatorReply struct {
	text string
	err  error
}

// generatorFake replays scripted replies per system instruction; the last
// reply repeats once the script runs out.
type generatorFake struct {
	mu        sync.Mutex
	replies   map[string][]generatorReply
	calls     map[string]int
	requests  []domain.GenerationRequest
	chatReply generatorReply
	chats     []domain.ChatRequest
}

func newGeneratorFake() *generatorFake {
	return &generatorFake{
		replies: make(map[string][]generatorReply),
		calls:   make(map[string]int),
	}
}

func (f *generatorFake) script(system string, replies ...generatorReply) *generatorFake {
	f.replies[system] = replies
	return f
}

func (f *generatorFake) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := f.calls[req.SystemInstruction]
	f.calls[req.SystemInstruction] = n + 1
	f.requests = append(f.requests, req)

	replies := f.replies[req.SystemInstruction]
	if len(replies) == 0 {
		return "", errors.New("unscripted generator call: " + req.SystemInstruction)
	}
	if n >= len(replies) {
		n = len(replies) - 1
	}
	return replies[n].text, replies[n].err
}

func (f *generatorFake) Chat(_ context.Context, req domain.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chats = append(f.chats, req)
	return f.chatReply.text, f.chatReply.err
}

func (f *generatorFake) callCount(system string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[system]
}

type taxonomyFake struct {
	labels       []string
	descriptions map[string][]domain.DiseaseDescription
	listErr      error
}

func (f *taxonomyFake) ListCanonicalLabels(context.Context, bool) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.labels, nil
}

func (f *taxonomyFake) FindDescriptions(_ context.Context, label string) ([]domain.DiseaseDescription, error) {
	return f.descriptions[label], nil
}

type crossMapFake struct {
	mu      sync.Mutex
	mapping map[string]string
	lookups int
}

func (f *crossMapFake) LookupCanonical(_ context.Context, domainID, diseaseID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	label, ok := f.mapping[domainID+"/"+diseaseID]
	return label, ok, nil
}

type encoderFake struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *encoderFake) Encode(_ context.Context, images [][]byte) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(images))
	for i := range images {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type visualFake struct {
	mu    sync.Mutex
	hits  []domain.VisualHit
	err   error
	calls int
}

func (f *visualFake) QueryImages(context.Context, []float32, int) ([]domain.VisualHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.VisualHit, len(f.hits))
	copy(out, f.hits)
	return out, nil
}

type documentFake struct {
	mu      sync.Mutex
	hits    []domain.DocumentHit
	err     error
	queries []string
}

func (f *documentFake) QueryDocuments(_ context.Context, text string, _ int) ([]domain.DocumentHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type keywordCall struct {
	keywords   []string
	entityType domain.EntityType
}

type keywordFake struct {
	mu       sync.Mutex
	retrieve func(keywords []string, entityType domain.EntityType) (domain.KeywordMatches, error)
	calls    []keywordCall
}

func (f *keywordFake) RetrieveKeywords(_ context.Context, keywords []string, entityType domain.EntityType) (domain.KeywordMatches, error) {
	f.mu.Lock()
	f.calls = append(f.calls, keywordCall{keywords: append([]string(nil), keywords...), entityType: entityType})
	f.mu.Unlock()
	if f.retrieve == nil {
		return domain.KeywordMatches{Keywords: keywords, Matches: map[string][]domain.KeywordMatch{}}, nil
	}
	return f.retrieve(keywords, entityType)
}

func (f *keywordFake) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type graphFake struct {
	mu    sync.Mutex
	edges map[string][]domain.GraphEdge
	calls int
}

func (f *graphFake) DiseasesByEntity(_ context.Context, entityID string, _ domain.RelationType, _ int) ([]domain.GraphEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.edges[entityID], nil
}

type publisherFake struct {
	mu     sync.Mutex
	events []domain.DiagnosisEvent
}

func (f *publisherFake) PublishDiagnosisCompleted(_ context.Context, event domain.DiagnosisEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type diagnosisFixture struct {
	taxonomy  *taxonomyFake
	crossMaps *crossMapFake
	encoder   *encoderFake
	visual    *visualFake
	documents *documentFake
	keywords  *keywordFake
	graph     *graphFake
	generator *generatorFake
	events    *publisherFake
}

func newDiagnosisFixture() *diagnosisFixture {
	return &diagnosisFixture{
		taxonomy:  &taxonomyFake{descriptions: map[string][]domain.DiseaseDescription{}},
		crossMaps: &crossMapFake{mapping: map[string]string{}},
		encoder:   &encoderFake{},
		visual:    &visualFake{},
		documents: &documentFake{},
		keywords:  &keywordFake{},
		graph:     &graphFake{edges: map[string][]domain.GraphEdge{}},
		generator: newGeneratorFake(),
		events:    &publisherFake{},
	}
}

func (f *diagnosisFixture) useCase() *DiagnosisUseCase {
	return NewDiagnosisUseCase(DiagnosisDependencies{
		Taxonomy:  f.taxonomy,
		CrossMaps: f.crossMaps,
		Encoder:   f.encoder,
		Visual:    f.visual,
		Documents: f.documents,
		Keywords:  f.keywords,
		Graph:     f.graph,
		Generator: f.generator,
		Events:    f.events,
	}, testPrompts(), DefaultDiagnosisOptions())
}

func (f *diagnosisFixture) retrievalCalls() int {
	f.visual.mu.Lock()
	visual := f.visual.calls
	f.visual.mu.Unlock()
	f.documents.mu.Lock()
	docs := len(f.documents.queries)
	f.documents.mu.Unlock()
	f.graph.mu.Lock()
	graph := f.graph.calls
	f.graph.mu.Unlock()
	return visual + docs + graph + f.keywords.callCount()
}
