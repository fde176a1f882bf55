package transcriber

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/z-wentao/speechflow/pkg/models"
)

// ticksPerSecond: offsets and durations are reported in 100ns ticks.
const ticksPerSecond = 10_000_000

// CombinedPhrase is the full text of one audio channel.
type CombinedPhrase struct {
	Channel   int    `json:"channel"`
	Lexical   string `json:"lexical"`
	ITN       string `json:"itn"`
	MaskedITN string `json:"maskedITN"`
	Display   string `json:"display"`
}

// Word 词级时间戳
type Word struct {
	Word            string  `json:"word"`
	OffsetInTicks   float64 `json:"offsetInTicks"`
	DurationInTicks float64 `json:"durationInTicks"`
	Confidence      float64 `json:"confidence"`
}

// NBest 识别候选
type NBest struct {
	Confidence float64 `json:"confidence"`
	Lexical    string  `json:"lexical"`
	ITN        string  `json:"itn"`
	MaskedITN  string  `json:"maskedITN"`
	Display    string  `json:"display"`
	Words      []Word  `json:"words,omitempty"`
}

// RecognizedPhrase is one utterance, attributed to a speaker when
// diarization is enabled.
type RecognizedPhrase struct {
	RecognitionStatus string  `json:"recognitionStatus"`
	Channel           int     `json:"channel"`
	Speaker           int     `json:"speaker,omitempty"`
	OffsetInTicks     float64 `json:"offsetInTicks"`
	DurationInTicks   float64 `json:"durationInTicks"`
	NBest             []NBest `json:"nBest"`
}

// Transcript is the payload behind a "Transcription" result file.
type Transcript struct {
	Source                    string             `json:"source"`
	Timestamp                 string             `json:"timestamp"`
	DurationInTicks           float64            `json:"durationInTicks"`
	CombinedRecognizedPhrases []CombinedPhrase   `json:"combinedRecognizedPhrases"`
	RecognizedPhrases         []RecognizedPhrase `json:"recognizedPhrases"`
}

// ParseTranscript 解析转录结果 JSON
func ParseTranscript(data []byte) (*Transcript, error) {
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("解析转录结果失败: %w", err)
	}
	return &t, nil
}

// Duration returns the audio length in seconds.
func (t *Transcript) Duration() float64 {
	return t.DurationInTicks / ticksPerSecond
}

// Segments returns the recognized phrases in time order, best candidate only.
func (t *Transcript) Segments() []models.Segment {
	phrases := make([]RecognizedPhrase, 0, len(t.RecognizedPhrases))
	for _, p := range t.RecognizedPhrases {
		if p.RecognitionStatus != "" && p.RecognitionStatus != "Success" {
			continue
		}
		if len(p.NBest) == 0 || strings.TrimSpace(p.NBest[0].Display) == "" {
			continue
		}
		phrases = append(phrases, p)
	}

	sort.SliceStable(phrases, func(i, j int) bool {
		if phrases[i].OffsetInTicks != phrases[j].OffsetInTicks {
			return phrases[i].OffsetInTicks < phrases[j].OffsetInTicks
		}
		return phrases[i].Channel < phrases[j].Channel
	})

	segments := make([]models.Segment, 0, len(phrases))
	for i, p := range phrases {
		best := p.NBest[0]
		segments = append(segments, models.Segment{
			Index:      i,
			Speaker:    p.Speaker,
			Channel:    p.Channel,
			Start:      p.OffsetInTicks / ticksPerSecond,
			End:        (p.OffsetInTicks + p.DurationInTicks) / ticksPerSecond,
			Text:       strings.TrimSpace(best.Display),
			Confidence: best.Confidence,
		})
	}
	return segments
}

// Text returns the display text of all channels, falling back to the joined
// phrases when the combined form is missing.
func (t *Transcript) Text() string {
	if len(t.CombinedRecognizedPhrases) > 0 {
		combined := append([]CombinedPhrase(nil), t.CombinedRecognizedPhrases...)
		sort.SliceStable(combined, func(i, j int) bool { return combined[i].Channel < combined[j].Channel })

		parts := make([]string, 0, len(combined))
		for _, c := range combined {
			if text := strings.TrimSpace(c.Display); text != "" {
				parts = append(parts, text)
			}
		}
		return strings.Join(parts, "\n")
	}

	segments := t.Segments()
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// SpeakerText renders the transcript as one line per speaker turn.
// Consecutive phrases of the same speaker are merged.
func SpeakerText(segments []models.Segment) string {
	var builder strings.Builder
	current := -1

	for _, s := range segments {
		if s.Speaker != current {
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(speakerLabel(s.Speaker))
			builder.WriteString(": ")
			current = s.Speaker
		} else {
			builder.WriteString(" ")
		}
		builder.WriteString(s.Text)
	}
	return builder.String()
}

func speakerLabel(speaker int) string {
	if speaker <= 0 {
		return "Unknown"
	}
	return fmt.Sprintf("Speaker %d", speaker)
}
