package providers

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

const (
	googleDefaultURL = "https://translation.googleapis.com"
	googleMaxTexts   = 100
)

type GoogleConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Google talks to the Cloud Translation v2 REST API with an API key.
type Google struct {
	apiKey  string
	baseURL string
	http    *resty.Client
}

func NewGoogle(cfg GoogleConfig) *Google {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = googleDefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Google{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http:    resty.New().SetTimeout(timeout),
	}
}

func (g *Google) Kind() Kind        { return KindGoogle }
func (g *Google) Name() string      { return KindGoogle.String() }
func (g *Google) IsAvailable() bool { return g.apiKey != "" }

type googleTranslateRequest struct {
	Q      []string `json:"q"`
	Target string   `json:"target"`
	Source string   `json:"source,omitempty"`
	Format string   `json:"format"`
}

type googleTranslateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
}

func (g *Google) Translate(ctx context.Context, text, source, target string) (*Result, error) {
	results, err := g.translateTexts(ctx, []string{text}, source, target)
	if err != nil {
		return nil, err
	}
	return &results[0], nil
}

func (g *Google) TranslateBatch(ctx context.Context, items []Item) ([]Result, error) {
	out := make([]Result, len(items))
	order, groups := groupByPair(items)
	for _, key := range order {
		for _, chunk := range chunkIndexes(groups[key], googleMaxTexts) {
			texts := make([]string, len(chunk))
			for i, idx := range chunk {
				texts[i] = items[idx].Text
			}
			results, err := g.translateTexts(ctx, texts, items[chunk[0]].Source, items[chunk[0]].Target)
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

func (g *Google) translateTexts(ctx context.Context, texts []string, source, target string) ([]Result, error) {
	body := googleTranslateRequest{
		Q:      texts,
		Target: googleLanguages.targetCode(target),
		Source: googleLanguages.sourceCode(source),
		Format: "text",
	}
	var resp googleTranslateResponse
	rr, err := g.http.R().SetContext(ctx).
		SetQueryParam("key", g.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		SetResult(&resp).
		Post(g.baseURL + "/language/translate/v2")
	if err != nil {
		return nil, requestError(g.Name(), err)
	}
	if rr.IsError() {
		return nil, statusError(g.Name(), rr)
	}
	if len(resp.Data.Translations) != len(texts) {
		return nil, malformedError(g.Name(), "expected %d translations, got %d", len(texts), len(resp.Data.Translations))
	}

	results := make([]Result, len(texts))
	for i, tr := range resp.Data.Translations {
		results[i] = Result{
			TranslatedText:         tr.TranslatedText,
			DetectedSourceLanguage: strings.ToLower(tr.DetectedSourceLanguage),
			Provider:               g.Name(),
			CharactersUsed:         utf8.RuneCountInString(texts[i]),
		}
	}
	return results, nil
}
