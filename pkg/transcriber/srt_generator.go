package transcriber

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/z-wentao/speechflow/pkg/models"
)

// GenerateSRT 生成 SRT 字幕文件
func GenerateSRT(segments []models.Segment, outputPath string) error {
	return writeSubtitle(outputPath, RenderSRT(segments))
}

// RenderSRT renders segments as SRT cues. Diarized segments are prefixed
// with their speaker label.
func RenderSRT(segments []models.Segment) string {
	var builder strings.Builder
	subtitleIndex := 1

	for _, seg := range segments {
		text := cueText(seg)
		if text == "" {
			continue
		}

		// 1
		// 00:00:00,000 --> 00:00:05,200
		// [Speaker 1] text
		builder.WriteString(fmt.Sprintf("%d\n", subtitleIndex))
		builder.WriteString(fmt.Sprintf("%s --> %s\n", formatSRTTime(seg.Start), formatSRTTime(seg.End)))
		builder.WriteString(fmt.Sprintf("%s\n\n", text))

		subtitleIndex++
	}

	return builder.String()
}

// formatSRTTime 将秒数格式化为 SRT 时间格式
// 例如: 65.5 -> 00:01:05,500
func formatSRTTime(seconds float64) string {
	return formatTimestamp(seconds, ',')
}

func formatTimestamp(seconds float64, millisSep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int64(math.Round(seconds * 1000))
	hours := total / 3_600_000
	minutes := (total % 3_600_000) / 60_000
	secs := (total % 60_000) / 1000
	millis := total % 1000

	return fmt.Sprintf("%02d:%02d:%02d%c%03d", hours, minutes, secs, millisSep, millis)
}

func cueText(seg models.Segment) string {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return ""
	}
	if seg.Speaker > 0 {
		return fmt.Sprintf("[%s] %s", speakerLabel(seg.Speaker), text)
	}
	return text
}

func writeSubtitle(outputPath, content string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	if err := os.WriteFile(outputPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("写入字幕文件失败: %w", err)
	}
	return nil
}
