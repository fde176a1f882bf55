package intent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/speechflow/pkg/batch"
	"github.com/z-wentao/speechflow/pkg/credentials"
)

// Intent 意图及置信度
type Intent struct {
	Intent string  `json:"intent"`
	Score  float64 `json:"score"`
}

// Entity 识别出的实体
type Entity struct {
	Entity     string  `json:"entity"`
	Type       string  `json:"type"`
	StartIndex int     `json:"startIndex"`
	EndIndex   int     `json:"endIndex"`
	Score      float64 `json:"score"`
}

// Prediction is the LUIS v2 prediction for one utterance.
type Prediction struct {
	Query            string   `json:"query"`
	TopScoringIntent *Intent  `json:"topScoringIntent"`
	Intents          []Intent `json:"intents,omitempty"`
	Entities         []Entity `json:"entities"`
}

// Describe renders the prediction as a short human readable report.
func (p *Prediction) Describe() string {
	var b strings.Builder
	if p.TopScoringIntent != nil {
		fmt.Fprintf(&b, "Detected intent: %s (score: %d%%)\n", p.TopScoringIntent.Intent, percent(p.TopScoringIntent.Score))
	} else {
		b.WriteString("Detected intent: none\n")
	}
	b.WriteString("Detected entities:\n")
	for _, e := range p.Entities {
		fmt.Fprintf(&b, "\t-> Entity '%s' (type: %s, score:%d%%)\n", e.Entity, e.Type, percent(e.Score))
	}
	return b.String()
}

func percent(score float64) int {
	return int(score * 100)
}

// Client LUIS 预测客户端
type Client struct {
	b       batch.Backend
	appID   string
	staging bool
	log     *logrus.Entry
}

// NewClient creates a prediction client for appID at endpoint, e.g.
// https://westus.api.cognitive.microsoft.com.
func NewClient(endpoint, appID, key string, staging bool, httpClient *http.Client, log *logrus.Entry) (*Client, error) {
	if appID == "" {
		return nil, errors.New("luis app id is required")
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "intent")

	base := strings.TrimRight(endpoint, "/") + "/luis/v2.0/apps"
	return &Client{
		b:       batch.NewBackend(base, credentials.SubscriptionKey(key), httpClient, log),
		appID:   appID,
		staging: staging,
		log:     log,
	}, nil
}

// Resolve predicts the intent of query.
func (c *Client) Resolve(ctx context.Context, query string) (*Prediction, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("query is empty")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("verbose", "true")
	if c.staging {
		params.Set("staging", "true")
	}

	var p Prediction
	if _, err := c.b.Call(ctx, http.MethodGet, url.PathEscape(c.appID)+"?"+params.Encode(), nil, &p); err != nil {
		return nil, fmt.Errorf("luis prediction: %w", err)
	}

	entry := c.log.WithField("entities", len(p.Entities))
	if p.TopScoringIntent != nil {
		entry = entry.WithFields(logrus.Fields{"intent": p.TopScoringIntent.Intent, "score": p.TopScoringIntent.Score})
	}
	entry.Debug("resolved utterance")
	return &p, nil
}
