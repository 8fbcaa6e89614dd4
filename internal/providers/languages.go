package providers

import "strings"

// languageMap converts application language codes (ISO 639-1, optionally with
// a region) into a provider's own scheme. Unknown codes go through fallback.
type languageMap struct {
	source   map[string]string
	target   map[string]string
	fallback func(string) string
}

func (m languageMap) sourceCode(code string) string {
	if isAutoSource(code) {
		return ""
	}
	return m.lookup(m.source, code)
}

func (m languageMap) targetCode(code string) string {
	return m.lookup(m.target, code)
}

func (m languageMap) lookup(table map[string]string, code string) string {
	key := strings.ToLower(strings.TrimSpace(code))
	if mapped, ok := table[key]; ok {
		return mapped
	}
	if m.fallback != nil {
		return m.fallback(key)
	}
	return strings.ToUpper(key)
}

// DeepL distinguishes regional target variants but only accepts bare source codes.
var deeplLanguages = languageMap{
	source: map[string]string{
		"en-us":   "EN",
		"en-gb":   "EN",
		"pt-br":   "PT",
		"pt-pt":   "PT",
		"zh-cn":   "ZH",
		"zh-hans": "ZH",
	},
	target: map[string]string{
		"en":      "EN-US",
		"en-us":   "EN-US",
		"en-gb":   "EN-GB",
		"pt":      "PT-PT",
		"pt-pt":   "PT-PT",
		"pt-br":   "PT-BR",
		"zh":      "ZH-HANS",
		"zh-cn":   "ZH-HANS",
		"zh-hans": "ZH-HANS",
		"zh-tw":   "ZH-HANT",
		"zh-hant": "ZH-HANT",
		"nb":      "NB",
		"no":      "NB",
	},
	fallback: strings.ToUpper,
}

var googleLanguages = languageMap{
	source: map[string]string{
		"zh":    "zh-CN",
		"zh-cn": "zh-CN",
		"zh-tw": "zh-TW",
		"he":    "iw",
		"pt-br": "pt",
		"en-us": "en",
		"en-gb": "en",
	},
	target: map[string]string{
		"zh":    "zh-CN",
		"zh-cn": "zh-CN",
		"zh-tw": "zh-TW",
		"he":    "iw",
		"pt-br": "pt",
		"en-us": "en",
		"en-gb": "en",
	},
	// Google codes are lower-case, so unmapped codes are not upper-cased.
	fallback: strings.ToLower,
}

var libreLanguages = languageMap{
	source: map[string]string{
		"zh-cn": "zh",
		"zh-tw": "zt",
		"pt-br": "pt",
		"pt-pt": "pt",
		"en-us": "en",
		"en-gb": "en",
		"nb":    "nb",
		"no":    "nb",
	},
	target: map[string]string{
		"zh-cn": "zh",
		"zh-tw": "zt",
		"pt-br": "pt",
		"pt-pt": "pt",
		"en-us": "en",
		"en-gb": "en",
		"no":    "nb",
	},
	// LibreTranslate only accepts lower-case codes.
	fallback: strings.ToLower,
}
