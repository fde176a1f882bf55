package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/cmd/speechctl/commands"
	"github.com/z-wentao/speechflow/pkg/speech"
	"github.com/z-wentao/speechflow/pkg/speech/azure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := commands.NewApp(func(key, region string, log *logrus.Entry) (speech.Recognizer, error) {
		return azure.NewRecognizer(key, region, log)
	})

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}
