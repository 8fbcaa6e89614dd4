package providers

import (
	"context"
	"fmt"
	"strings"
)

// Kind is the closed set of supported translation backends.
type Kind int

const (
	KindDeepL Kind = iota + 1
	KindGoogle
	KindLibreTranslate
)

func (k Kind) String() string {
	switch k {
	case KindDeepL:
		return "deepl"
	case KindGoogle:
		return "google"
	case KindLibreTranslate:
		return "libretranslate"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deepl":
		return KindDeepL, nil
	case "google", "google_translate", "googletranslate":
		return KindGoogle, nil
	case "libretranslate", "libre":
		return KindLibreTranslate, nil
	default:
		return 0, fmt.Errorf("unknown translation provider %q", s)
	}
}

// ParseKinds parses a comma separated priority list, skipping blanks.
func ParseKinds(list string) ([]Kind, error) {
	var kinds []Kind
	for _, part := range strings.Split(list, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		k, err := ParseKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

type Item struct {
	Text   string `json:"text"`
	Source string `json:"source"`
	Target string `json:"target"`
}

type Result struct {
	TranslatedText         string `json:"translated_text"`
	DetectedSourceLanguage string `json:"detected_source_language,omitempty"`
	Provider               string `json:"provider"`
	CharactersUsed         int    `json:"characters_used"`
}

// Provider is one external translation API. TranslateBatch must return exactly
// one result per item, in item order.
type Provider interface {
	Kind() Kind
	Name() string
	IsAvailable() bool
	Translate(ctx context.Context, text, source, target string) (*Result, error)
	TranslateBatch(ctx context.Context, items []Item) ([]Result, error)
}

type Usage struct {
	CharacterCount int64 `json:"character_count"`
	CharacterLimit int64 `json:"character_limit"`
}

// UsageReporter is implemented by providers exposing a quota endpoint.
type UsageReporter interface {
	Usage(ctx context.Context) (*Usage, error)
}

func isAutoSource(code string) bool {
	code = strings.TrimSpace(code)
	return code == "" || strings.EqualFold(code, "auto")
}

type pairKey struct {
	source string
	target string
}

// groupByPair returns item indexes grouped by language pair, groups in first-seen order.
func groupByPair(items []Item) ([]pairKey, map[pairKey][]int) {
	var order []pairKey
	groups := make(map[pairKey][]int)
	for i, item := range items {
		key := pairKey{source: strings.ToLower(item.Source), target: strings.ToLower(item.Target)}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	return order, groups
}

func chunkIndexes(indexes []int, size int) [][]int {
	var chunks [][]int
	for start := 0; start < len(indexes); start += size {
		end := start + size
		if end > len(indexes) {
			end = len(indexes)
		}
		chunks = append(chunks, indexes[start:end])
	}
	return chunks
}
