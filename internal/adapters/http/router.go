package httpadapter

import (
	"context"
	"net/http"
	"time"

	"github.com/kirillkom/dermafusion/internal/config"
	"github.com/kirillkom/dermafusion/internal/core/domain"
	"github.com/kirillkom/dermafusion/internal/core/ports"
	"github.com/kirillkom/dermafusion/internal/observability/metrics"
)

type Router struct {
	cfg        config.Config
	diagnosis  ports.DiagnosisService
	classifier ports.QueryClassifier
	labels     ports.LabelMatcher

	metrics       *metrics.HTTPServerMetrics
	breakerStates func() map[string]string
}

type RouterOption func(*Router)

func WithMetrics(m *metrics.HTTPServerMetrics) RouterOption {
	return func(rt *Router) {
		rt.metrics = m
	}
}

// WithBreakerStates exposes circuit breaker states on /healthz.
func WithBreakerStates(fn func() map[string]string) RouterOption {
	return func(rt *Router) {
		rt.breakerStates = fn
	}
}

func NewRouter(
	cfg config.Config,
	diagnosis ports.DiagnosisService,
	classifier ports.QueryClassifier,
	labels ports.LabelMatcher,
	opts ...RouterOption,
) *Router {
	rt := &Router{
		cfg:        cfg,
		diagnosis:  diagnosis,
		classifier: classifier,
		labels:     labels,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(rt)
		}
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("/v1/diagnosis/context", rt.getContext)
	api.HandleFunc("/v1/diagnosis/analyze", rt.analyze)
	api.HandleFunc("/v1/diagnosis/conversations", rt.startConversation)
	api.HandleFunc("/v1/diagnosis/conversations/continue", rt.continueConversation)
	api.HandleFunc("/v1/labels/match", rt.matchLabel)
	api.HandleFunc("/v1/queries/classify", rt.classifyQuery)

	var limited http.Handler = api
	limited = backpressureMiddleware(limited, rt.cfg.APIBackpressureMaxInFly, time.Duration(rt.cfg.APIBackpressureWaitMS)*time.Millisecond)
	limited = rateLimitMiddleware(limited, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, rt.onRateLimited)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", limited)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": rt.cfg.AppVersion,
	}
	if rt.breakerStates != nil {
		states := rt.breakerStates()
		for _, state := range states {
			if state == "open" {
				resp["status"] = "degraded"
				break
			}
		}
		resp["breakers"] = states
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) getContext(w http.ResponseWriter, r *http.Request) {
	input, ok := rt.diagnosisInput(w, r)
	if !ok {
		return
	}
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	start := time.Now()
	result, err := rt.diagnosis.GetContext(ctx, input)
	mode, _ := input.Mode()
	if err != nil {
		rt.recordDiagnosis("context", mode, 0, start, err)
		writeError(w, r, err)
		return
	}
	rt.recordDiagnosis("context", mode, len(result.Labels), start, nil)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) analyze(w http.ResponseWriter, r *http.Request) {
	input, ok := rt.diagnosisInput(w, r)
	if !ok {
		return
	}
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	start := time.Now()
	result, err := rt.diagnosis.GetDiagnosis(ctx, input)
	mode, _ := input.Mode()
	if err != nil {
		rt.recordDiagnosis("analyze", mode, 0, start, err)
		writeError(w, r, err)
		return
	}
	rt.recordDiagnosis("analyze", mode, len(result.Labels), start, nil)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) startConversation(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req diagnosisRequest
	if err := decodeJSON(w, r, rt.cfg.APIMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	images, err := req.ImageBase64.decode()
	if err != nil {
		writeError(w, r, err)
		return
	}
	input := domain.FirstStageInput{Text: req.Text, MimeType: req.MimeType}
	if len(images) > 0 {
		input.Image = images[0]
	}
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	start := time.Now()
	result, err := rt.diagnosis.StartConversation(ctx, input)
	if err != nil {
		rt.recordDiagnosis("conversation_first", domain.ModeImage, 0, start, err)
		writeError(w, r, err)
		return
	}
	rt.recordDiagnosis("conversation_first", domain.ModeImage, len(result.Labels), start, nil)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) continueConversation(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req followUpRequest
	if err := decodeJSON(w, r, rt.cfg.APIMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	start := time.Now()
	result, err := rt.diagnosis.ContinueConversation(ctx, domain.FollowUpInput{History: req.ChatHistory, Text: req.Text})
	rt.recordDiagnosis("conversation_followup", "", 0, start, err)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) matchLabel(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req matchLabelRequest
	if err := decodeJSON(w, r, rt.cfg.APIMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	minScore := req.MinScore
	if minScore <= 0 {
		minScore = rt.cfg.MatchMinScore
	}

	match, ok, err := rt.labels.MatchLabel(r.Context(), req.Query, minScore)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, matchLabelResponse{Matched: ok, MatchResult: match})
}

func (rt *Router) classifyQuery(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req classifyRequest
	if err := decodeJSON(w, r, rt.cfg.APIMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := rt.requestContext(r)
	defer cancel()

	result, err := rt.classifier.DetectQueryType(ctx, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) diagnosisInput(w http.ResponseWriter, r *http.Request) (domain.DiagnosisInput, bool) {
	if !allowMethod(w, r, http.MethodPost) {
		return domain.DiagnosisInput{}, false
	}
	var req diagnosisRequest
	if err := decodeJSON(w, r, rt.cfg.APIMaxBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return domain.DiagnosisInput{}, false
	}
	images, err := req.ImageBase64.decode()
	if err != nil {
		writeError(w, r, err)
		return domain.DiagnosisInput{}, false
	}
	return domain.DiagnosisInput{Text: req.Text, Images: images}, true
}

func (rt *Router) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if rt.cfg.APIRequestTimeoutSec <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), time.Duration(rt.cfg.APIRequestTimeoutSec)*time.Second)
}

func (rt *Router) recordDiagnosis(operation string, mode domain.DiagnosisMode, labels int, start time.Time, err error) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordDiagnosis(operation, string(mode), labels, time.Since(start), err)
}

func (rt *Router) onRateLimited() {
	if rt.metrics != nil {
		rt.metrics.RecordRateLimited()
	}
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	return false
}
