package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"
	"github.com/z-wentao/speechflow/pkg/intent"
)

// IntentAction 调用 LUIS 识别意图
func IntentAction(ctx context.Context, cmd *cli.Command, app *AppContext) error {
	cfg := app.Config
	if cfg.LUIS.AppID == "" {
		return errors.New("请设置 LUIS app id (LUIS_APP_ID)")
	}

	client, err := intent.NewClient(cfg.LUISEndpoint(), cfg.LUIS.AppID, cfg.LUIS.SubscriptionKey, cfg.LUIS.Staging, nil, app.Logger.WithField("command", "intent"))
	if err != nil {
		return err
	}

	prediction, err := client.Resolve(ctx, cmd.String("query"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(app.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(prediction)
	}
	fmt.Fprint(app.Out, prediction.Describe())
	return nil
}
