package openai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/claimlens/backend/internal/domain/entities"
)

const strategySystemPrompt = `You are a research planner for a fact-checking service. Given a factual claim, return ONLY valid JSON with this schema:
{
  "categories": string[] (1-3 topic categories, lowercase, e.g. "medicine", "economics", "climate"),
  "backends": string[] (1-4 from: pubmed, arxiv, semantic_scholar, crossref, oecd, world_bank)
}
Pick pubmed for medical and health claims, oecd and world_bank for economic and statistical claims, arxiv for physics, math and computer science, semantic_scholar and crossref for general scholarly topics. Do not invent backend names.`

const queriesSystemPrompt = `You are a search query specialist. Given a factual claim and a list of research backends, return ONLY valid JSON mapping each backend name to one concise English search query optimized for that backend. Use keyword queries, not questions. Omit a backend rather than forcing an irrelevant query.`

const prosConsSystemPrompt = `You are a fact-checking analyst. Given a claim and a list of sources, return ONLY valid JSON with this schema:
{
  "pros": string[] (points from the sources supporting the claim),
  "cons": string[] (points from the sources contradicting or weakening the claim)
}
Each point must be one sentence and cite no source not in the list. Return empty arrays when the sources say nothing relevant.`

// strategyPayload mirrors the strategy JSON schema.
type strategyPayload struct {
	Categories []string `json:"categories"`
	Backends   []string `json:"backends"`
}

func buildStrategyUserPrompt(claim entities.Claim) string {
	return fmt.Sprintf("Claim: %s\n", claimText(claim))
}

func buildQueriesUserPrompt(claim entities.Claim, backends []string) string {
	return fmt.Sprintf("Claim: %s\nBackends: %s\n", claimText(claim), strings.Join(backends, ", "))
}

func buildProsConsUserPrompt(claim entities.Claim, sources []entities.SourceRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s\nSources:\n", claimText(claim))
	for i, source := range sources {
		if i >= maxProsConsSources {
			break
		}
		fmt.Fprintf(&b, "%d. [%s] %s", i+1, source.Backend, source.Title)
		if source.Snippet != "" {
			fmt.Fprintf(&b, " - %s", source.Snippet)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// claimText prefers the English translation when present.
func claimText(claim entities.Claim) string {
	if claim.TextEN != "" {
		return claim.TextEN
	}
	return claim.Text
}

func parseStrategyPayload(data []byte) (*strategyPayload, error) {
	var payload strategyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse strategy payload: %w", err)
	}
	return &payload, nil
}

func parseQueriesPayload(data []byte) (map[string]string, error) {
	var payload map[string]string
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse queries payload: %w", err)
	}
	return payload, nil
}

func parseProsConsPayload(data []byte) (*entities.ClaimAnalysis, error) {
	var payload entities.ClaimAnalysis
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse pros/cons payload: %w", err)
	}
	if payload.Pros == nil {
		payload.Pros = []string{}
	}
	if payload.Cons == nil {
		payload.Cons = []string{}
	}
	return &payload, nil
}
