package ollama

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/OFFIS-RIT/trailgraph/pkg/ai"

	"github.com/ollama/ollama/api"
	"golang.org/x/sync/semaphore"
)

// GraphOllamaClient implements ai.GraphAIClient on top of a (possibly
// remote) Ollama server. Requests are capped by a weighted semaphore so a
// batch fan-out cannot overload a single GPU host.
type GraphOllamaClient struct {
	extractionModel string
	briefingModel   string

	reqLock *semaphore.Weighted

	metricsLock sync.Mutex
	metrics     ai.ModelMetrics

	Client *api.Client
}

// NewGraphOllamaClientParams contains configuration options for creating a new GraphOllamaClient.
type NewGraphOllamaClientParams struct {
	ExtractionModel string
	BriefingModel   string

	BaseURL string
	ApiKey  string

	MaxConcurrentRequests int64
}

type headerTransport struct {
	headers map[string]string
	rt      http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// clone so original request isn't modified
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	return t.rt.RoundTrip(r)
}

// NewGraphOllamaClient creates a new Ollama-based AI client. An empty BaseURL
// connects to the default local server.
func NewGraphOllamaClient(
	params NewGraphOllamaClientParams,
) (*GraphOllamaClient, error) {
	var (
		u   *url.URL
		err error
	)

	if params.BaseURL != "" {
		u, err = url.Parse(params.BaseURL)
		if err != nil {
			return nil, err
		}
	}

	transport := http.DefaultTransport
	if params.ApiKey != "" {
		transport = &headerTransport{
			headers: map[string]string{
				"Authorization": "Bearer " + params.ApiKey,
			},
			rt: http.DefaultTransport,
		}
	}
	httpClient := &http.Client{Transport: transport}

	maxReq := params.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 4
	}

	briefingModel := params.BriefingModel
	if briefingModel == "" {
		briefingModel = params.ExtractionModel
	}

	return &GraphOllamaClient{
		extractionModel: params.ExtractionModel,
		briefingModel:   briefingModel,
		reqLock:         semaphore.NewWeighted(maxReq),
		Client:          api.NewClient(u, httpClient),
	}, nil
}
