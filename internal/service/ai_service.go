package service

import (
	"bytes"
	"context"
	"edutest_backend/internal/config"
	"edutest_backend/internal/model"
	"edutest_backend/internal/util"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// AIService talks to an OpenAI-compatible chat completions endpoint. It is
// both the feedback and the test-authoring collaborator.
type AIService struct {
	mu     sync.RWMutex
	config config.AIConfig
	client *http.Client
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{config: cfg, client: &http.Client{Timeout: cfg.Timeout()}}
}

// SetConfig swaps endpoint settings at runtime.
func (s *AIService) SetConfig(cfg config.AIConfig) {
	s.mu.Lock()
	s.config = cfg
	s.client = &http.Client{Timeout: cfg.Timeout()}
	s.mu.Unlock()
}

func (s *AIService) settings() (config.AIConfig, *http.Client) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config, s.client
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []AIChatMessage `json:"messages"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (s *AIService) Chat(ctx context.Context, system, prompt string) (string, error) {
	cfg, client := s.settings()
	if cfg.BaseURL == "" {
		return "", errors.New("AI base url is not configured")
	}

	messages := []AIChatMessage{}
	if system != "" {
		messages = append(messages, AIChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, AIChatMessage{Role: "user", Content: prompt})

	jsonData, err := json.Marshal(ChatCompletionRequest{Model: cfg.Model, Messages: messages})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", strings.TrimRight(cfg.BaseURL, "/")+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	if result.Error != nil {
		return "", fmt.Errorf("AI API error: %s", result.Error.Message)
	}
	if len(result.Choices) > 0 {
		return result.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("AI returned no choices")
}

const feedbackSystemPrompt = "Bạn là giáo viên Tiếng Anh THCS. Viết nhận xét ngắn gọn, mang tính sư phạm."

func (s *AIService) GenerateFeedback(ctx context.Context, req FeedbackRequest) (string, error) {
	answers, _ := json.Marshal(req.Answers)
	prompt := fmt.Sprintf(`Phân tích kết quả bài thi Tiếng Anh:
- Điểm số: %.1f/10
- Số câu hỏi: %d
- Dữ liệu bài làm: %s
Hãy viết một nhận xét sư phạm chuyên sâu (khoảng 150 từ) đánh giá đúng các kỹ năng và đưa ra lời khuyên học tập.`,
		req.Score, len(req.Questions), answers)

	text, err := s.Chat(ctx, feedbackSystemPrompt, prompt)
	if err != nil {
		return "", &util.CollaboratorError{Op: "feedback", Err: err}
	}
	return text, nil
}

type TestRequest struct {
	Grade    int    `json:"grade" binding:"required,min=1,max=12"`
	Topic    string `json:"topic" binding:"required"`
	Level    string `json:"level"`
	Duration int    `json:"duration"`
}

// GeneratedTest is an authoring response that passed validation.
type GeneratedTest struct {
	Title     string
	Matrix    string
	Questions []model.Question
}

const authoringSystemPrompt = "Bạn là một chuyên gia khảo thí Tiếng Anh THCS tại Việt Nam. Chỉ trả lời bằng JSON hợp lệ."

func (s *AIService) GenerateTest(ctx context.Context, req TestRequest) (GeneratedTest, error) {
	prompt := fmt.Sprintf(`Hãy lập một MA TRẬN ĐỀ KIỂM TRA và tạo ĐỀ THI TRẮC NGHIỆM cho học sinh lớp %d.
Chủ đề: "%s"
Mức độ ưu tiên: %s
Tỉ lệ ma trận: Nhận biết (40%%) - Thông hiểu (30%%) - Vận dụng (20%%) - Vận dụng cao (10%%).
Định dạng JSON: {"title": "...", "matrix": "...", "questions": [{"id": "...", "type": "...", "difficulty": "Nhận biết/Thông hiểu/Vận dụng/Vận dụng cao", "content": "...", "passage": "...", "options": {"A": "...", "B": "...", "C": "...", "D": "..."}, "correctAnswer": "A/B/C/D", "explanation": "..."}]}`,
		req.Grade, req.Topic, req.Level)

	text, err := s.Chat(ctx, authoringSystemPrompt, prompt)
	if err != nil {
		return GeneratedTest{}, &util.CollaboratorError{Op: "generate test", Err: err}
	}
	gen, err := ParseGeneratedTest(text)
	if err != nil {
		return GeneratedTest{}, &util.CollaboratorError{Op: "generate test", Err: err}
	}
	return gen, nil
}

type rawQuestion struct {
	ID            string        `json:"id"`
	Type          string        `json:"type"`
	Difficulty    string        `json:"difficulty"`
	Content       string        `json:"content"`
	Passage       string        `json:"passage"`
	Options       model.Options `json:"options"`
	CorrectAnswer string        `json:"correctAnswer"`
	Explanation   string        `json:"explanation"`
}

type rawTest struct {
	Title     string        `json:"title"`
	Matrix    string        `json:"matrix"`
	Questions []rawQuestion `json:"questions"`
}

// ParseGeneratedTest validates an authoring response. Markdown code fences
// around the JSON are removed first.
func ParseGeneratedTest(text string) (GeneratedTest, error) {
	clean := strings.ReplaceAll(text, "```json", "")
	clean = strings.TrimSpace(strings.ReplaceAll(clean, "```", ""))
	if clean == "" {
		return GeneratedTest{}, errors.New("empty response")
	}

	var raw rawTest
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return GeneratedTest{}, fmt.Errorf("malformed JSON: %w", err)
	}
	if len(raw.Questions) == 0 {
		return GeneratedTest{}, errors.New("response has no questions")
	}

	gen := GeneratedTest{Title: strings.TrimSpace(raw.Title), Matrix: raw.Matrix}
	seen := make(map[string]bool, len(raw.Questions))
	for i, rq := range raw.Questions {
		d, err := model.ParseDifficulty(rq.Difficulty)
		if err != nil {
			return GeneratedTest{}, fmt.Errorf("question %d: %w", i+1, err)
		}
		id := strings.TrimSpace(rq.ID)
		if id == "" || seen[id] {
			id = model.GenerateUUID()
		}
		seen[id] = true

		q := model.Question{
			ID:            id,
			Type:          strings.TrimSpace(rq.Type),
			Difficulty:    d,
			Content:       strings.TrimSpace(rq.Content),
			Passage:       strings.TrimSpace(rq.Passage),
			Options:       rq.Options,
			CorrectAnswer: strings.ToUpper(strings.TrimSpace(rq.CorrectAnswer)),
			Explanation:   rq.Explanation,
		}
		if err := q.Check(); err != nil {
			return GeneratedTest{}, fmt.Errorf("question %d: %w", i+1, err)
		}
		gen.Questions = append(gen.Questions, q)
	}
	return gen, nil
}
