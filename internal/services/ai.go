package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"quizdeck/internal/models"
)

var (
	// ErrAIUnavailable is returned when the OpenAI integration is not configured.
	ErrAIUnavailable = errors.New("openai integration is not configured")
	// ErrUpstream marks a failed round-trip to the generation endpoint
	// (network, auth, quota). The caller gets an empty result, never a crash.
	ErrUpstream = errors.New("generation request failed")
	// ErrMalformedResponse marks a response that could not be decoded into
	// the expected JSON array shape.
	ErrMalformedResponse = errors.New("malformed generation response")
)

// promptCharBudget caps the document excerpt embedded in prompts so the
// upstream model's input limit is respected. Truncation is silent; text
// beyond the cutoff is never seen by the model.
const promptCharBudget = 7000

const generationBatchSize = 10

type FlashcardPrototype struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type QuestionPrototype struct {
	QuestionText  string `json:"question_text"`
	CorrectAnswer string `json:"correct_answer"`
	Option1       string `json:"option1"`
	Option2       string `json:"option2"`
	Option3       string `json:"option3"`
}

// AIService wraps the external text-completion endpoint and parses its
// JSON-array responses into typed prototypes.
type AIService struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

func NewAIService(apiKey, model, endpoint string, timeout time.Duration, logger *zap.Logger) *AIService {
	if apiKey == "" {
		return &AIService{logger: logger}
	}
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &AIService{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}
}

func (s *AIService) disabled() bool {
	return s.client == nil || s.model == ""
}

// GenerateFlashcards asks the model for a fixed-size batch of front/back
// pairs derived from the document text.
func (s *AIService) GenerateFlashcards(ctx context.Context, documentText string) ([]FlashcardPrototype, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	prompt := fmt.Sprintf(`Create %d flashcards from the following text. Each flashcard should be comprehensive and include at least 33%% of the original content's key points.

For each flashcard:
1. The 'front' should be a key concept, term, or question
2. The 'back' must be detailed and thorough, covering at least 33%% of the relevant information from the source text
3. Include examples, context, and explanations where appropriate
4. Make sure the explanations are substantive and not oversimplified

Format the result as a JSON array of objects, each with 'front' and 'back' properties.

Text:
%s

Response format:
[
    {"front": "Concept/Question", "back": "Detailed explanation that covers at least 33%% of the relevant information from the source text"},
    ...
]`, generationBatchSize, truncate(documentText, promptCharBudget))

	content, err := s.complete(ctx,
		"You are an educator who turns study material into flashcards.",
		prompt,
	)
	if err != nil {
		return nil, err
	}

	var cards []FlashcardPrototype
	jsonStr := extractJSON(content)
	if err := json.Unmarshal([]byte(jsonStr), &cards); err != nil {
		s.logger.Warn("unparseable flashcard response",
			zap.String("extracted", jsonStr),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for i, card := range cards {
		if strings.TrimSpace(card.Front) == "" || strings.TrimSpace(card.Back) == "" {
			return nil, fmt.Errorf("%w: flashcard %d is missing front or back", ErrMalformedResponse, i)
		}
	}
	return cards, nil
}

// GenerateQuestions asks the model for multiple-choice questions built from
// the given flashcards: one correct answer and three distractors each.
func (s *AIService) GenerateQuestions(ctx context.Context, flashcards []models.Flashcard) ([]QuestionPrototype, error) {
	if s.disabled() {
		return nil, ErrAIUnavailable
	}

	var topics strings.Builder
	for _, card := range flashcards {
		fmt.Fprintf(&topics, "Topic: %s\nExplanation: %s\n", card.Front, card.Back)
	}

	prompt := fmt.Sprintf(`Create %d multiple-choice questions based on these flashcard topics:

%s

Format the result as a JSON array of objects, each with 'question_text', 'correct_answer', 'option1', 'option2', and 'option3' properties.
The 'correct_answer' should be the right answer, and options should be plausible but incorrect alternatives.

Response format:
[
    {
        "question_text": "Question goes here?",
        "correct_answer": "Correct answer",
        "option1": "Wrong option 1",
        "option2": "Wrong option 2",
        "option3": "Wrong option 3"
    },
    ...
]`, generationBatchSize, topics.String())

	content, err := s.complete(ctx,
		"You are an educator who writes multiple-choice quiz questions from flashcards.",
		prompt,
	)
	if err != nil {
		return nil, err
	}

	var questions []QuestionPrototype
	jsonStr := extractJSON(content)
	if err := json.Unmarshal([]byte(jsonStr), &questions); err != nil {
		s.logger.Warn("unparseable question response",
			zap.String("extracted", jsonStr),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	for i, q := range questions {
		if strings.TrimSpace(q.QuestionText) == "" ||
			strings.TrimSpace(q.CorrectAnswer) == "" ||
			strings.TrimSpace(q.Option1) == "" ||
			strings.TrimSpace(q.Option2) == "" ||
			strings.TrimSpace(q.Option3) == "" {
			return nil, fmt.Errorf("%w: question %d is missing a field", ErrMalformedResponse, i)
		}
	}
	return questions, nil
}

// complete runs one chat completion with a bounded timeout, retrying at
// most once on a transient failure.
func (s *AIService) complete(ctx context.Context, system, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.4,
		MaxTokens:   4096,
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		resp, err := s.client.CreateChatCompletion(callCtx, req)
		cancel()
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%w: no choices returned", ErrUpstream)
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("%w: %v", ErrUpstream, lastErr)
}

// extractJSON removes markdown code block formatting if present and
// extracts the JSON array from the response text.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)

	// Remove markdown code blocks like ```json ... ``` or ``` ... ```
	if strings.HasPrefix(content, "```") {
		start := 3
		// Skip the language identifier line, if any
		if newlineIdx := strings.Index(content[start:], "\n"); newlineIdx != -1 {
			start += newlineIdx + 1
		}
		if endIdx := strings.Index(content[start:], "```"); endIdx != -1 {
			content = content[start : start+endIdx]
		} else {
			content = content[start:]
		}
	}

	content = strings.TrimSpace(content)

	// Additional safety: trim to the outermost JSON array
	if startIdx := strings.Index(content, "["); startIdx != -1 {
		if endIdx := strings.LastIndex(content, "]"); endIdx != -1 && endIdx > startIdx {
			content = content[startIdx : endIdx+1]
		}
	}

	return strings.TrimSpace(content)
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
