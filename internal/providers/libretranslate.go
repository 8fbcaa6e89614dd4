package providers

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

const libreDefaultURL = "https://libretranslate.com"

type LibreTranslateConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// LibreTranslate is the keyless public fallback.
type LibreTranslate struct {
	apiKey  string
	baseURL string
	http    *resty.Client
}

func NewLibreTranslate(cfg LibreTranslateConfig) *LibreTranslate {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = libreDefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &LibreTranslate{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    resty.New().SetTimeout(timeout),
	}
}

func (l *LibreTranslate) Kind() Kind        { return KindLibreTranslate }
func (l *LibreTranslate) Name() string      { return KindLibreTranslate.String() }
func (l *LibreTranslate) IsAvailable() bool { return true }

type libreTranslateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreTranslateResponse struct {
	TranslatedText   string `json:"translatedText"`
	DetectedLanguage *struct {
		Language   string  `json:"language"`
		Confidence float64 `json:"confidence"`
	} `json:"detectedLanguage,omitempty"`
}

func (l *LibreTranslate) Translate(ctx context.Context, text, source, target string) (*Result, error) {
	sourceCode := libreLanguages.sourceCode(source)
	if sourceCode == "" {
		sourceCode = "auto"
	}
	body := libreTranslateRequest{
		Q:      text,
		Source: sourceCode,
		Target: libreLanguages.targetCode(target),
		Format: "text",
		APIKey: l.apiKey,
	}
	var resp libreTranslateResponse
	rr, err := l.http.R().SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&resp).
		Post(l.baseURL + "/translate")
	if err != nil {
		return nil, requestError(l.Name(), err)
	}
	if rr.IsError() {
		return nil, statusError(l.Name(), rr)
	}
	if resp.TranslatedText == "" && strings.TrimSpace(text) != "" {
		return nil, malformedError(l.Name(), "empty translation in response")
	}

	result := &Result{
		TranslatedText: resp.TranslatedText,
		Provider:       l.Name(),
		CharactersUsed: utf8.RuneCountInString(text),
	}
	if resp.DetectedLanguage != nil {
		result.DetectedSourceLanguage = strings.ToLower(resp.DetectedLanguage.Language)
	}
	return result, nil
}

// TranslateBatch fans out one request per item. The first failure fails the batch.
func (l *LibreTranslate) TranslateBatch(ctx context.Context, items []Item) ([]Result, error) {
	out := make([]Result, len(items))
	for i, item := range items {
		res, err := l.Translate(ctx, item.Text, item.Source, item.Target)
		if err != nil {
			return nil, err
		}
		out[i] = *res
	}
	return out, nil
}
