// Package translate turns history entry text into a target-language
// rendition via the Gemini API. The fallback policy is internal: an
// ordered list of models is tried and the first success wins; callers
// see one opaque call with one outcome.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/ZawYePhyo/Handy/log"
)

// Translator is the single call the mutation workflow depends on.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

const geminiAPIBase = "https://generativelanguage.googleapis.com/v1beta"

// Tried in order; only the last failure is surfaced if all fail.
var geminiModels = []string{"gemini-2.5-flash", "gemini-2.0-flash"}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type Gemini struct {
	client  *TracedClient
	baseURL string

	// read at call time so settings changes apply without reconstruction
	apiKey func() string
	lang   func() string
}

func NewGemini(apiKey func() string, lang func() string) *Gemini {
	return &Gemini{
		client:  NewTracedClient(),
		baseURL: geminiAPIBase,
		apiKey:  apiKey,
		lang:    lang,
	}
}

func (g *Gemini) Translate(ctx context.Context, text string) (string, error) {
	key := g.apiKey()
	if key == "" {
		return "", fmt.Errorf("Gemini API key is not configured. Please add your API key in Settings.")
	}
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	lang := g.lang()
	if lang == "" {
		lang = "en"
	}
	prompt := fmt.Sprintf(
		"Translate this text to %s. Return only the translated text, nothing else.\n\n%s",
		lang, text)

	var lastErr error
	for _, model := range geminiModels {
		out, err := g.generate(ctx, key, model, prompt)
		if err == nil {
			return out, nil
		}
		log.Warnf("translation with model %s failed: %v", model, err)
		lastErr = err
	}
	return "", fmt.Errorf("translation failed: %w", lastErr)
}

func (g *Gemini) generate(ctx context.Context, key, model, prompt string) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, model, key)

	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	if resp.StatusCode != 200 {
		return "", fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(resp.Body))
	}

	var gResp geminiResponse
	if err := json.Unmarshal(resp.Body, &gResp); err != nil {
		return "", fmt.Errorf("response parse error: %w", err)
	}
	if gResp.Error != nil {
		return "", fmt.Errorf("gemini API error (code %d): %s", gResp.Error.Code, gResp.Error.Message)
	}

	var out string
	if len(gResp.Candidates) > 0 && len(gResp.Candidates[0].Content.Parts) > 0 {
		out = gResp.Candidates[0].Content.Parts[0].Text
	}
	out = strings.TrimSpace(out)

	log.Translation(model, len(out), float64(resp.Metrics.Total.Milliseconds()),
		float64(resp.Metrics.TTFB.Milliseconds()), resp.Metrics.ConnReused)
	return out, nil
}
