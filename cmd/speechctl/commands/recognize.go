package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
	"github.com/z-wentao/speechflow/pkg/speech"
)

// RecognizeAction 对 WAV 文件做连续识别；--speakers 时改用会话转录并标注说话人
func RecognizeAction(newRecognizer RecognizerFactory) func(ctx context.Context, cmd *cli.Command, app *AppContext) error {
	return func(ctx context.Context, cmd *cli.Command, app *AppContext) error {
		if newRecognizer == nil {
			return errors.New("此构建未包含语音识别支持")
		}

		recognizer, err := newRecognizer(app.Config.Azure.SubscriptionKey, app.Config.Azure.Region, app.Logger.WithField("command", "recognize"))
		if err != nil {
			return err
		}

		src := speech.Source{
			WavFile:               cmd.String("file"),
			Locale:                cmd.String("locale"),
			DifferentiateSpeakers: cmd.Bool("speakers"),
		}
		if src.Locale == "" {
			src.Locale = app.Config.Transcription.Locale
		}

		_, events, err := speech.RecognizeFile(ctx, recognizer, src)
		printEvents(app.Out, events, src.DifferentiateSpeakers)
		return err
	}
}

func printEvents(w io.Writer, events []speech.Event, speakers bool) {
	for _, ev := range events {
		switch ev.Kind {
		case speech.EventRecognized:
			if speakers {
				speaker := ev.Speaker
				if speaker == "" {
					speaker = "Unknown"
				}
				fmt.Fprintf(w, "TRANSCRIBED: %s: %s\n", speaker, ev.Text)
			} else {
				fmt.Fprintf(w, "RECOGNIZED: %s\n", ev.Text)
			}
		case speech.EventNoMatch:
			fmt.Fprintln(w, "NOMATCH: Speech could not be recognized.")
		case speech.EventSessionStopped:
			fmt.Fprintln(w, "Session stopped.")
		}
	}
}
