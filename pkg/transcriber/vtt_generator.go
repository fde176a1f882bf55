package transcriber

import (
	"fmt"
	"strings"

	"github.com/z-wentao/speechflow/pkg/models"
)

// GenerateVTT 生成 WebVTT 字幕文件（用于 HTML5 video 播放）
func GenerateVTT(segments []models.Segment, outputPath string) error {
	return writeSubtitle(outputPath, RenderVTT(segments))
}

// RenderVTT renders segments as WebVTT. Speakers are emitted as voice
// spans: <v Speaker 1>text
func RenderVTT(segments []models.Segment) string {
	var builder strings.Builder

	// VTT 文件必须以 "WEBVTT" 开头
	builder.WriteString("WEBVTT\n\n")

	subtitleIndex := 1
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if seg.Speaker > 0 {
			text = fmt.Sprintf("<v %s>%s", speakerLabel(seg.Speaker), text)
		}

		builder.WriteString(fmt.Sprintf("%d\n", subtitleIndex))
		builder.WriteString(fmt.Sprintf("%s --> %s\n", formatVTTTime(seg.Start), formatVTTTime(seg.End)))
		builder.WriteString(fmt.Sprintf("%s\n\n", text))

		subtitleIndex++
	}

	return builder.String()
}

// formatVTTTime 将秒数格式化为 VTT 时间格式
// VTT 使用点号(.)而不是逗号(,)
func formatVTTTime(seconds float64) string {
	return formatTimestamp(seconds, '.')
}
