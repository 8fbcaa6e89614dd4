package providers

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

const (
	deeplProURL  = "https://api.deepl.com"
	deeplFreeURL = "https://api-free.deepl.com"
	// DeepL accepts at most 50 texts per request.
	deeplMaxTexts = 50
)

type DeepLConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type DeepL struct {
	apiKey  string
	baseURL string
	http    *resty.Client
}

func NewDeepL(cfg DeepLConfig) *DeepL {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = deeplProURL
		if strings.HasSuffix(cfg.APIKey, ":fx") {
			baseURL = deeplFreeURL
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &DeepL{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    resty.New().SetTimeout(timeout),
	}
}

func (d *DeepL) Kind() Kind        { return KindDeepL }
func (d *DeepL) Name() string      { return KindDeepL.String() }
func (d *DeepL) IsAvailable() bool { return d.apiKey != "" }

type deeplTranslateRequest struct {
	Text       []string `json:"text"`
	TargetLang string   `json:"target_lang"`
	SourceLang string   `json:"source_lang,omitempty"`
}

type deeplTranslateResponse struct {
	Translations []struct {
		DetectedSourceLanguage string `json:"detected_source_language"`
		Text                   string `json:"text"`
	} `json:"translations"`
}

func (d *DeepL) Translate(ctx context.Context, text, source, target string) (*Result, error) {
	results, err := d.translateTexts(ctx, []string{text}, source, target)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

func (d *DeepL) TranslateBatch(ctx context.Context, items []Item) ([]Result, error) {
	out := make([]Result, len(items))
	order, groups := groupByPair(items)
	for _, key := range order {
		for _, chunk := range chunkIndexes(groups[key], deeplMaxTexts) {
			texts := make([]string, len(chunk))
			for i, idx := range chunk {
				texts[i] = items[idx].Text
			}
			results, err := d.translateTexts(ctx, texts, items[chunk[0]].Source, items[chunk[0]].Target)
			if err != nil {
				return nil, err
			}
			for i, idx := range chunk {
				out[idx] = results[i]
			}
		}
	}
	return out, nil
}

func (d *DeepL) translateTexts(ctx context.Context, texts []string, source, target string) ([]Result, error) {
	body := deeplTranslateRequest{
		Text:       texts,
		TargetLang: deeplLanguages.targetCode(target),
		SourceLang: deeplLanguages.sourceCode(source),
	}
	var resp deeplTranslateResponse
	rr, err := d.http.R().SetContext(ctx).
		SetHeader("Authorization", "DeepL-Auth-Key "+d.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&resp).
		Post(d.baseURL + "/v2/translate")
	if err != nil {
		return nil, requestError(d.Name(), err)
	}
	if rr.IsError() {
		return nil, statusError(d.Name(), rr)
	}
	if len(resp.Translations) != len(texts) {
		return nil, malformedError(d.Name(), "expected %d translations, got %d", len(texts), len(resp.Translations))
	}

	results := make([]Result, len(texts))
	for i, tr := range resp.Translations {
		results[i] = Result{
			TranslatedText:         tr.Text,
			DetectedSourceLanguage: strings.ToLower(tr.DetectedSourceLanguage),
			Provider:               d.Name(),
			CharactersUsed:         utf8.RuneCountInString(texts[i]),
		}
	}
	return results, nil
}

// Usage reports the character quota of the configured key.
func (d *DeepL) Usage(ctx context.Context) (*Usage, error) {
	var usage Usage
	rr, err := d.http.R().SetContext(ctx).
		SetHeader("Authorization", "DeepL-Auth-Key "+d.apiKey).
		SetResult(&usage).
		Get(d.baseURL + "/v2/usage")
	if err != nil {
		return nil, requestError(d.Name(), err)
	}
	if rr.IsError() {
		return nil, statusError(d.Name(), rr)
	}
	return &usage, nil
}
