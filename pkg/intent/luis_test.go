package intent

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/speechflow/pkg/batch"
)

const predictionJSON = `{
  "query": "book a flight to seattle",
  "topScoringIntent": {"intent": "BookFlight", "score": 0.9731},
  "intents": [
    {"intent": "BookFlight", "score": 0.9731},
    {"intent": "None", "score": 0.0412}
  ],
  "entities": [
    {"entity": "seattle", "type": "Location", "startIndex": 17, "endIndex": 23, "score": 0.8845}
  ]
}`

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/luis/v2.0/apps/app-123", r.URL.Path)
		assert.Equal(t, "book a flight to seattle", r.URL.Query().Get("q"))
		assert.Equal(t, "true", r.URL.Query().Get("verbose"))
		assert.Equal(t, "secret", r.Header.Get("Ocp-Apim-Subscription-Key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(predictionJSON))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "app-123", "secret", false, srv.Client(), nil)
	require.NoError(t, err)

	p, err := c.Resolve(context.Background(), "book a flight to seattle")
	require.NoError(t, err)
	require.NotNil(t, p.TopScoringIntent)
	assert.Equal(t, "BookFlight", p.TopScoringIntent.Intent)
	assert.Len(t, p.Intents, 2)
	require.Len(t, p.Entities, 1)
	assert.Equal(t, "Location", p.Entities[0].Type)

	assert.Equal(t,
		"Detected intent: BookFlight (score: 97%)\n"+
			"Detected entities:\n"+
			"\t-> Entity 'seattle' (type: Location, score:88%)\n",
		p.Describe())
}

func TestResolveServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"401","message":"Access denied due to invalid subscription key."}}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, "app-123", "wrong", false, srv.Client(), nil)
	require.NoError(t, err)

	_, err = c.Resolve(context.Background(), "hello")
	var apiErr *batch.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "invalid subscription key")
}

func TestResolveValidation(t *testing.T) {
	_, err := NewClient("https://westus.api.cognitive.microsoft.com", "", "k", false, nil, nil)
	assert.Error(t, err)

	c, err := NewClient("https://westus.api.cognitive.microsoft.com", "app", "k", false, nil, nil)
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), "   ")
	assert.Error(t, err)
}

func TestDescribeWithoutIntent(t *testing.T) {
	p := &Prediction{}
	assert.Equal(t, "Detected intent: none\nDetected entities:\n", p.Describe())
}
