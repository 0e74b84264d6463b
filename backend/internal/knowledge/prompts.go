package knowledge

import (
	"strings"
	"time"

	"buddy/backend/internal/constants"
	"buddy/backend/internal/graph"
)

// ExtractEntitiesPrompt turns a transcript into GraphData
const ExtractEntitiesPrompt = `You are building a personal knowledge graph for a life-coaching assistant.
Today is {date}. The user's id is {user_id}.

Read the interview below and extract everything it reveals about the user's interests, goals,
the motivations behind those goals, concrete tasks toward them, and the dates tasks were created.

Interview:
{interview}

Use only the node labels, properties and relationship types of this schema:
{graph_schema}

Rules:
- Create exactly one User node. Give it the property "user_id" set to the user's id.
- Every Task is PART_OF a Goal and CREATED_ON a Date. Use today's date unless the interview names another one.
- Goal timeframes are "short-term", "medium-term" or "long-term". Task statuses are "pending", "in_progress", "completed" or "failed".
- Node ids only need to be unique within this document. Relationships refer to nodes by these ids.
- Do not invent facts the interview does not support. If it contains nothing worth storing, return empty arrays.

Respond with a single JSON object, no markdown, matching this definition:
{graph_data}`

// MergeGraphsPrompt reconciles a fresh extraction with the stored graph
const MergeGraphsPrompt = `You maintain a personal knowledge graph for a life-coaching assistant. Today is {date}.

Below are the graph currently stored for the user and a graph freshly extracted from their latest conversation.
Combine them into one graph that replaces the stored one.

Schema:
{graph_schema}

Stored graph:
{existing_graph}

New graph:
{new_graph}

Rules:
- Keep exactly one User node.
- Treat nodes that describe the same interest, goal, motivation, task or date as one node; prefer the newer wording and status.
- Keep stored nodes the new graph does not mention. Drop a node only when the new graph clearly supersedes it.
- Keep every relationship whose endpoints survive, using the node ids of your output.
- Use only the labels, properties and relationship types of the schema.

Respond with a single JSON object, no markdown, with the same shape as the input graphs:
{"nodes": [{"id": "...", "label": "...", "props": {...}}], "relationships": [{"source": "...", "target": "...", "label": "..."}]}`

// InitialGoalsPrompt steers the onboarding interview whose transcript feeds
// the knowledge graph
const InitialGoalsPrompt = `You are Buddy, a warm and practical life coach meeting the user for the first time.

Get to know them through a short conversation. Ask one question at a time about:
- what they enjoy and care about,
- the goals they want to reach, and by when,
- why those goals matter to them,
- the first concrete steps they could take.

Keep replies brief and encouraging. Do not lecture.
Once you know their interests, at least one goal with its motivation, and a first step, close the conversation
with a short summary and a word of encouragement wrapped in <final_message></final_message>.
Only use that tag once, in your very last message.`

// DailyOutlinePrompt plans the user's day from what the graph knows about them
const DailyOutlinePrompt = `You are Buddy, a warm and practical life coach. Today is {date}.

Help the user outline their day so it moves them toward their goals. Ground your suggestions in what you
already know about them, and ask before assuming anything that is not listed.

{context}

Suggest at most three focused tasks, each tied to one of their goals. Keep replies brief.
When the user agrees on a plan, restate it wrapped in <final_message></final_message>.`

// RenderChatPrompt returns the system prompt of flavour. knownContext is
// rendered retrieval context and is only used by FlavourDailyOutline.
func RenderChatPrompt(flavour Flavour, knownContext string, now time.Time) string {
	if flavour != FlavourDailyOutline {
		return InitialGoalsPrompt
	}
	if knownContext == "" {
		knownContext = "Nothing is known about the user yet."
	}
	return strings.NewReplacer(
		"{date}", now.Format(constants.DateFormat),
		"{context}", knownContext,
	).Replace(DailyOutlinePrompt)
}

// RenderExtractionPrompt fills ExtractEntitiesPrompt
func RenderExtractionPrompt(interview, userID string, now time.Time) string {
	return strings.NewReplacer(
		"{interview}", interview,
		"{graph_schema}", graph.GraphSchema,
		"{graph_data}", graph.GraphDataDefinition,
		"{date}", now.Format(constants.DateFormat),
		"{user_id}", userID,
	).Replace(ExtractEntitiesPrompt)
}

// RenderMergePrompt fills MergeGraphsPrompt with serialized graphs
func RenderMergePrompt(existingGraph, newGraph string, now time.Time) string {
	return strings.NewReplacer(
		"{graph_schema}", graph.GraphSchema,
		"{existing_graph}", existingGraph,
		"{new_graph}", newGraph,
		"{date}", now.Format(constants.DateFormat),
	).Replace(MergeGraphsPrompt)
}
