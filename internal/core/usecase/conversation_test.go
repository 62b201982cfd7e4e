package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/dermafusion/internal/core/domain"
)

func conversationFixture() *diagnosisFixture {
	fx := newDiagnosisFixture()
	fx.taxonomy.labels = []string{"VẢY NẾN (Psoriasis)", "BỆNH LAO DA", "CHÀM"}
	fx.visual.hits = []domain.VisualHit{
		{ID: "1", Label: "VẢY NẾN (Psoriasis)", Distance: 0.1},
		{ID: "2", Label: "Foreign X", Distance: 0.2, DomainID: "d2", DomainDiseaseID: "42"},
		{ID: "3", Label: "Unknown", Distance: 0.3},
	}
	fx.crossMaps.mapping["d2/42"] = "CHÀM"
	return fx
}

func TestStartConversationPropagatesShortlistExhaustion(t *testing.T) {
	fx := conversationFixture()
	fx.generator.script("shortlist", generatorReply{err: &domain.AllBackendsFailedError{
		Operation: "generate",
		Failures: []domain.BackendFailure{
			{Provider: "gemini", Credential: "AIzaSyAB***", Model: "gemini-2.0-flash", Message: "429"},
			{Provider: "gemini", Credential: "AIzaSyAB***", Model: "gemini-1.5-pro", Message: "503"},
		},
	}})
	uc := fx.useCase()

	result, err := uc.StartConversation(context.Background(), domain.FirstStageInput{Image: []byte("img")})
	if result != nil {
		t.Fatalf("expected no result, got %+v", result)
	}
	var exhausted *domain.AllBackendsFailedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected AllBackendsFailedError, got %v", err)
	}
	if len(exhausted.Failures) != 2 {
		t.Fatalf("expected per-backend failures to be kept, got %+v", exhausted.Failures)
	}
	if fx.generator.callCount("first_stage") != 0 {
		t.Fatalf("narrative must not be generated after shortlist exhaustion")
	}
}

func TestTwoStageConversation(t *testing.T) {
	fx := conversationFixture()
	fx.generator.script("shortlist", generatorReply{text: "```python\n['Vảy nến', 'qqq xyz 999']\n```"})
	fx.generator.script("first_stage", generatorReply{text: "Nhiều khả năng là vảy nến."})
	fx.generator.chatReply = generatorReply{text: "Cần thêm thông tin về thời gian xuất hiện."}
	uc := fx.useCase()
	ctx := context.Background()

	first, err := uc.StartConversation(ctx, domain.FirstStageInput{Text: "Ngứa nhiều", Image: []byte("img")})
	if err != nil {
		t.Fatalf("StartConversation() error = %v", err)
	}
	if first.Stage != domain.StageAwaitingFollowUp {
		t.Fatalf("expected awaiting follow-up, got %s", first.Stage)
	}
	if len(first.Labels) != 2 || first.Labels[0].Label != "VẢY NẾN (Psoriasis)" || first.Labels[1].Label != "CHÀM" {
		t.Fatalf("unexpected first-stage ranking %+v", first.Labels)
	}
	if fx.crossMaps.lookups != 1 {
		t.Fatalf("expected one cross-map lookup, got %d", fx.crossMaps.lookups)
	}
	if len(first.ChatHistory) != 2 {
		t.Fatalf("expected 2-turn history, got %d", len(first.ChatHistory))
	}
	userTurn := first.ChatHistory[0]
	if userTurn.Role != domain.RoleUser || len(userTurn.Content) != 2 ||
		userTurn.Content[0].Text != "Ngứa nhiều" || userTurn.Content[1].Type != domain.PartImage {
		t.Fatalf("unexpected user turn %+v", userTurn)
	}
	if first.ChatHistory[1].Role != domain.RoleAssistant || first.ChatHistory[1].Content[0].Text != first.Response {
		t.Fatalf("unexpected assistant turn %+v", first.ChatHistory[1])
	}

	retrievals := fx.retrievalCalls()
	encodes := fx.encoder.calls

	second, err := uc.ContinueConversation(ctx, domain.FollowUpInput{History: first.ChatHistory, Text: "Có lan rộng không?"})
	if err != nil {
		t.Fatalf("ContinueConversation() error = %v", err)
	}
	if len(second.ChatHistory) != 4 {
		t.Fatalf("expected 4-turn history, got %d", len(second.ChatHistory))
	}
	for i := 0; i < 2; i++ {
		if second.ChatHistory[i].Role != first.ChatHistory[i].Role ||
			len(second.ChatHistory[i].Content) != len(first.ChatHistory[i].Content) ||
			second.ChatHistory[i].Content[0].Text != first.ChatHistory[i].Content[0].Text {
			t.Fatalf("turn %d changed: %+v", i, second.ChatHistory[i])
		}
	}
	if second.ChatHistory[2].Role != domain.RoleUser || second.ChatHistory[2].Content[0].Text != "follow-up: Có lan rộng không?" {
		t.Fatalf("unexpected new user turn %+v", second.ChatHistory[2])
	}
	if second.ChatHistory[3].Role != domain.RoleAssistant || second.ChatHistory[3].Content[0].Text != second.Response {
		t.Fatalf("unexpected new assistant turn %+v", second.ChatHistory[3])
	}
	if len(first.ChatHistory) != 2 {
		t.Fatalf("caller history must not be mutated")
	}
	if fx.retrievalCalls() != retrievals || fx.encoder.calls != encodes {
		t.Fatalf("follow-up stage must not run retrieval")
	}
	if len(fx.generator.chats) != 1 || len(fx.generator.chats[0].History) != 3 || fx.generator.chats[0].MaxTokens != 5000 {
		t.Fatalf("unexpected chat request %+v", fx.generator.chats)
	}
	if second.Stage != domain.StageAwaitingFollowUp {
		t.Fatalf("expected awaiting follow-up, got %s", second.Stage)
	}
}

func TestStartConversationUnparseableShortlistDegradesToVisual(t *testing.T) {
	fx := conversationFixture()
	fx.generator.script("shortlist", generatorReply{text: "không có danh sách"})
	fx.generator.script("first_stage", generatorReply{text: "ok"})
	uc := fx.useCase()

	result, err := uc.StartConversation(context.Background(), domain.FirstStageInput{Image: []byte("img")})
	if err != nil {
		t.Fatalf("StartConversation() error = %v", err)
	}
	if fx.generator.callCount("shortlist") != 3 {
		t.Fatalf("expected 3 shortlist attempts, got %d", fx.generator.callCount("shortlist"))
	}
	if len(result.Labels) != 2 {
		t.Fatalf("expected visual candidates only, got %+v", result.Labels)
	}
	if len(result.ChatHistory[0].Content) != 1 {
		t.Fatalf("image-only user turn must hold just the image, got %+v", result.ChatHistory[0].Content)
	}
}

func TestStartConversationRequiresImage(t *testing.T) {
	fx := conversationFixture()
	_, err := fx.useCase().StartConversation(context.Background(), domain.FirstStageInput{Text: "ngứa"})
	if !errors.Is(err, domain.ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
}

func TestContinueConversationValidatesInput(t *testing.T) {
	fx := conversationFixture()
	uc := fx.useCase()
	history := domain.ConversationState{{Role: domain.RoleUser, Content: []domain.Part{domain.TextPart("hi")}}}

	if _, err := uc.ContinueConversation(context.Background(), domain.FollowUpInput{History: history}); !errors.Is(err, domain.ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
	if _, err := uc.ContinueConversation(context.Background(), domain.FollowUpInput{Text: "x"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestMatchShortlistDropsUnmatchedAndDuplicates(t *testing.T) {
	canonical := []string{"VẢY NẾN (Psoriasis)", "BỆNH LAO DA"}
	got := matchShortlist([]string{"psoriasis", "Vảy nến", "qqq xyz 999", "bệnh lao da"}, canonical, 60)
	if len(got) != 2 || got[0] != "VẢY NẾN (Psoriasis)" || got[1] != "BỆNH LAO DA" {
		t.Fatalf("unexpected shortlist %v", got)
	}
}
