// Package prompts holds the instruction templates sent to the language model.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultSystem = `You are **Surveyor**, an intelligent and empathetic conversational survey assistant.

**Purpose:** {purpose}

Your goals:
1. Understand the user's interests, motivations, and goals through a short, engaging dialogue.
2. Conduct a dynamic survey by asking one concise, adaptive question at a time.
3. Adapt your questions based on the user's tone, previous answers, and hints of excitement.
4. Keep questions open-ended, safe, and friendly.
5. Avoid private or sensitive data (name, contact info, location, etc.).
6. Once you have enough context, you can summarize or infer the user's interests.

Start by greeting the user naturally and asking a simple, engaging question related to {purpose}.`

const defaultInfer = `Analyze the following conversation history between the user and assistant:
{history}

Your task: infer 3-5 high-level user interests or intents based on their responses.
Each interest should represent a *psychographic signal* - what the user enjoys, values, or aims for.

Return a JSON array:
[
  {
    "name": "short, human-readable interest label",
    "confidence": float (0.0-1.0),
    "rationale": "brief reason for inferring this interest"
  }
]

Guidelines:
- Keep interests general and safe (e.g., "travel", "technology", "fitness", "career growth").
- Avoid sensitive topics or identity-based inferences.
- Rank results by confidence descending.
- Only use clues present in the conversation.
- Respond with the JSON array only.`

const defaultSummary = `Generate a short summary or one-liner based on the following user query: {prompt}`

// Set is the collection of templates used by the agent.
type Set struct {
	System  string `yaml:"system"`
	Infer   string `yaml:"infer"`
	Summary string `yaml:"summary"`
}

// Default returns the built-in templates.
func Default() Set {
	return Set{
		System:  defaultSystem,
		Infer:   defaultInfer,
		Summary: defaultSummary,
	}
}

// Load returns the defaults overlaid with any non-empty template from the YAML
// file at path. An empty path yields the defaults.
func Load(path string) (Set, error) {
	set := Default()
	if path == "" {
		return set, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read prompts file: %w", err)
	}

	var override Set
	if err := yaml.Unmarshal(data, &override); err != nil {
		return Set{}, fmt.Errorf("parse prompts file: %w", err)
	}

	if strings.TrimSpace(override.System) != "" {
		set.System = override.System
	}
	if strings.TrimSpace(override.Infer) != "" {
		if !strings.Contains(override.Infer, "{history}") {
			return Set{}, fmt.Errorf("infer template must contain {history}")
		}
		set.Infer = override.Infer
	}
	if strings.TrimSpace(override.Summary) != "" {
		if !strings.Contains(override.Summary, "{prompt}") {
			return Set{}, fmt.Errorf("summary template must contain {prompt}")
		}
		set.Summary = override.Summary
	}
	return set, nil
}

// SystemFor renders the conversation instruction for a survey purpose.
func (s Set) SystemFor(purpose string) string {
	return strings.ReplaceAll(s.System, "{purpose}", purpose)
}

// InferFor renders the extraction instruction around a transcript.
func (s Set) InferFor(history string) string {
	return strings.ReplaceAll(s.Infer, "{history}", history)
}

// SummaryFor renders the summarization instruction for a raw prompt.
func (s Set) SummaryFor(prompt string) string {
	return strings.ReplaceAll(s.Summary, "{prompt}", prompt)
}
