package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"classroom-backend/internal/grading"
)

// FeedbackService writes a short comment for a graded exam. Gemini is used when an API
// key is configured; otherwise, or when the call fails, a fixed template is used.
type FeedbackService struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
	logger   zerolog.Logger
}

func NewFeedbackService(ctx context.Context, apiKey string, concurrentReqs int, logger zerolog.Logger) (*FeedbackService, error) {
	s := &FeedbackService{logger: logger.With().Str("component", "feedback").Logger()}
	if apiKey == "" {
		s.logger.Info().Msg("GEMINI_API_KEY not set, using template feedback")
		return s, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel("gemini-2.0-flash")
	model.SetTemperature(0.4)
	model.SetTopP(0.95)
	model.SetMaxOutputTokens(200)

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	s.client = client
	s.model = model
	s.rateChan = rateChan
	return s, nil
}

func (s *FeedbackService) Close() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *FeedbackService) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return fmt.Errorf("timeout waiting for Gemini rate slot")
	}
}

func (s *FeedbackService) releaseRate() {
	s.rateChan <- struct{}{}
}

// Suggest never fails; it degrades to the template.
func (s *FeedbackService) Suggest(ctx context.Context, lessonTitle string, result grading.Result) string {
	fallback := templateFeedback(result)
	if s == nil || s.model == nil {
		return fallback
	}

	if err := s.acquireRate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("feedback rate slot unavailable")
		return fallback
	}
	defer s.releaseRate()

	resp, err := s.model.GenerateContent(ctx, genai.Text(buildFeedbackPrompt(lessonTitle, result)))
	if err != nil {
		s.logger.Warn().Err(err).Msg("Gemini feedback failed")
		return fallback
	}

	text := strings.TrimSpace(extractText(resp))
	if text == "" {
		return fallback
	}
	return text
}

func buildFeedbackPrompt(lessonTitle string, result grading.Result) string {
	var b strings.Builder
	b.WriteString("You are a supportive teacher. Write two short sentences of feedback for a student.\n")
	fmt.Fprintf(&b, "Exam: %s\n", lessonTitle)
	fmt.Fprintf(&b, "Score: %.1f out of %.1f (%d of %d questions correct)\n",
		result.Score, result.MaxScore, result.CorrectCount, result.Total)
	b.WriteString("Plain text only. No markdown.")
	return b.String()
}

func templateFeedback(result grading.Result) string {
	if result.Total == 0 {
		return "No answers were recorded for this exam."
	}

	ratio := 0.0
	if result.MaxScore > 0 {
		ratio = result.Score / result.MaxScore
	}

	var lead string
	switch {
	case ratio >= 0.9:
		lead = "Excellent work!"
	case ratio >= 0.7:
		lead = "Good job."
	case ratio >= 0.5:
		lead = "You're getting there."
	default:
		lead = "Keep practicing and review the lesson material."
	}
	return fmt.Sprintf("%s You answered %d of %d questions correctly.", lead, result.CorrectCount, result.Total)
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}
