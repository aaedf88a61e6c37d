package api

import (
	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/template"
)

type CollectRequest struct {
	// Model selects a tokenizer by name or path. Empty uses the server
	// default.
	Model    string            `json:"model,omitempty"`
	Template template.Document `json:"template"`
	Stream   *bool             `json:"stream,omitempty"`
}

func (r CollectRequest) validate() error {
	if len(r.Template.Segments) == 0 {
		return newInvalidRequest("template.segments is required")
	}
	return nil
}

type CollectResponse struct {
	ID         string            `json:"id"`
	Object     string            `json:"object"`
	CreatedAt  int64             `json:"created_at"`
	Preview    string            `json:"preview"`
	Completion string            `json:"completion"`
	Refs       map[string]string `json:"refs,omitempty"`
	Usage      CollectUsage      `json:"usage"`
}

type CollectUsage struct {
	GeneratedTokens int64   `json:"generated_tokens"`
	TokensPerSecond float64 `json:"tokens_per_second,omitempty"`
}

type DeleteResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type StatusResponse struct {
	Version     string      `json:"version"`
	Loaded      bool        `json:"loaded"`
	State       string      `json:"state"`
	TotalTokens int64       `json:"total_tokens"`
	Last        *StatsEntry `json:"last,omitempty"`
}

type StatsEntry struct {
	TokensGenerated int     `json:"tokens_generated"`
	DurationMS      int64   `json:"duration_ms"`
	TokensPerSecond float64 `json:"tokens_per_second"`
}

func statsEntry(s inference.Stats) *StatsEntry {
	if s.TokensGenerated == 0 && s.Duration == 0 {
		return nil
	}
	return &StatsEntry{
		TokensGenerated: s.TokensGenerated,
		DurationMS:      s.Duration.Milliseconds(),
		TokensPerSecond: s.TPS,
	}
}

type CancelResponse struct {
	State string `json:"state"`
}

type TokenizeRequest struct {
	Model string `json:"model,omitempty"`
	Text  string `json:"text"`
}

type TokenizeResponse struct {
	Tokens []int `json:"tokens"`
	Count  int   `json:"count"`
}

type DetokenizeRequest struct {
	Model  string `json:"model,omitempty"`
	Tokens []int  `json:"tokens"`
}

type DetokenizeResponse struct {
	Text string `json:"text"`
}

type ModelList struct {
	Object string       `json:"object"`
	Data   []ModelEntry `json:"data"`
}

type ModelEntry struct {
	ID     string `json:"id"`
	Object string `json:"object"`
}

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}
