package summary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/z-wentao/speechflow/pkg/models"
	"github.com/z-wentao/speechflow/pkg/transcriber"
)

// 限制转录文本长度（避免超出 token 限制）
const maxTranscriptRunes = 12000

// Summarizer AI 转录摘要
type Summarizer struct {
	client *openai.Client
	model  string
}

// NewSummarizer 创建摘要器
func NewSummarizer(apiKey, model string) *Summarizer {
	return NewSummarizerWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewSummarizerWithConfig allows a custom base URL or HTTP client.
func NewSummarizerWithConfig(cfg openai.ClientConfig, model string) *Summarizer {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Summarizer{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// SpeakerPoints 单个说话人的要点
type SpeakerPoints struct {
	Speaker string   `json:"speaker"`
	Points  []string `json:"points"`
}

// Summary 摘要结果
type Summary struct {
	Summary  string          `json:"summary"`
	Speakers []SpeakerPoints `json:"speakers"`
}

// String renders the summary as plain text for storage.
func (s *Summary) String() string {
	var b strings.Builder
	b.WriteString(s.Summary)
	for _, sp := range s.Speakers {
		if len(sp.Points) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n\n%s:", sp.Speaker)
		for _, p := range sp.Points {
			fmt.Fprintf(&b, "\n- %s", p)
		}
	}
	return b.String()
}

// Summarize 生成摘要。有分段时按说话人组织文本，否则直接使用全文
func (s *Summarizer) Summarize(ctx context.Context, text string, segments []models.Segment) (*Summary, error) {
	transcript := text
	if len(segments) > 0 {
		transcript = transcriber.SpeakerText(segments)
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, errors.New("transcript is empty")
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You summarize meeting and call transcripts. Reply with JSON only, no other text.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(transcript),
			},
		},
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("调用 OpenAI API 失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("OpenAI API 未返回结果")
	}

	content := resp.Choices[0].Message.Content
	var result Summary
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return nil, fmt.Errorf("解析 AI 响应失败: %w, 原始响应: %s", err, content)
	}
	return &result, nil
}

// buildPrompt 构建提示词
func buildPrompt(transcript string) string {
	return fmt.Sprintf(`Summarize the following transcript.

1. Requirements:
   - "summary": at most five sentences, in the language of the transcript
   - "speakers": for each speaker label that appears, up to five key points
   - Do not invent content that is not in the transcript

2. Output format (strict JSON):
{
  "summary": "...",
  "speakers": [
    {"speaker": "Speaker 1", "points": ["..."]}
  ]
}

Transcript:
%s`, truncate(transcript, maxTranscriptRunes))
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
