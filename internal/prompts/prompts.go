// Package prompts holds the prompt templates for the four generation steps.
// Each system prompt embeds the JSON schema the response must follow; the
// schemas are static constants shared with the structured decoder.
//
// The grounding instructions ("do not make up suggestions") are a content
// contract enforced by instruction only; the pipeline cannot verify them
// mechanically.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"processlens/internal/llm"
	"processlens/internal/llm/structured"
)

// Response field names, one per generation step.
const (
	FieldWeaknesses = "process_weaknesses"
	FieldQuery      = "search_query"
	FieldSuggestion = "improvement_suggestion"
	FieldAnswer     = "improvement_suggestions_text"
)

var (
	weaknessSchema = structured.StringListField(
		"Process_Weakness_Identification",
		FieldWeaknesses,
		"A list of all the process weaknesses mentioned in the Tweet",
	)

	querySchema = structured.StringField(
		"Search_Query_Generation",
		FieldQuery,
		"A short query to search for improvement suggestions that address the common process weakness mentioned in the Texts",
	)

	suggestionSchema = structured.StringField(
		"Improvement_Suggestion_Generation",
		FieldSuggestion,
		"A process improvement suggestion that addresses the Question",
	)

	answerSchema = structured.StringField(
		"Improvement_Suggestion_Generation",
		FieldAnswer,
		"A text that provides an improvement suggestion for each process weakness described in the Tweet",
	)
)

// FormatContext joins context fragments the way every template expects.
func FormatContext(parts []string) string {
	return strings.Join(parts, "\n\n")
}

const weaknessSystemTemplate = `As an assistant dedicated to supporting airline operations, your task is to identify process weaknesses mentioned in Tweets. You do not make up any process weaknesses. Your answer must adhere to the following JSON Schema.

JSON Schema:
%s`

const weaknessUserTemplate = `Identify each process weakness mentioned in the Tweet.

Tweet: %s`

// Few-shot calibration: multiple weaknesses, none (twice), single (twice).
var fewShotTweets = []string{
	`First, I was rebooked on a different flight and now I received my suitcase completely damaged.`,
	`I had a wonderful flight!`,
	`YOU LOST OUR GODDAMN BAGS! We have to go to a conference tomorrow. Gonna have to buy a nice outfit in the morning.`,
	`My flight to Miami was delayed by 5 hours. You never fail to disappoint.`,
	`I've gone thru unnecessary foolishness with you all day and I'm over it!`,
}

var fewShotWeaknesses = [][]string{
	{"I was rebooked on a different flight.", "I received my suitcase completely damaged."},
	{},
	{"You lost our bags."},
	{"My flight to Miami was delayed by 5 hours."},
	{},
}

// WeaknessMessages builds the few-shot conversation for extracting the
// weaknesses of one feedback text.
func WeaknessMessages(feedbackText string) []llm.Message {
	messages := make([]llm.Message, 0, 2*len(fewShotTweets)+2)
	messages = append(messages, llm.Message{
		Role:    llm.RoleSystem,
		Content: fmt.Sprintf(weaknessSystemTemplate, weaknessSchema.JSON()),
	})

	for i, tweet := range fewShotTweets {
		reply, _ := json.Marshal(map[string][]string{FieldWeaknesses: fewShotWeaknesses[i]})
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: fmt.Sprintf(weaknessUserTemplate, tweet)},
			llm.Message{Role: llm.RoleAssistant, Content: string(reply)},
		)
	}

	return append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf(weaknessUserTemplate, feedbackText),
	})
}

const querySystemTemplate = `You are an assistant dedicated to supporting airline operations. Based on Texts about a process weakness, create a concise search query aimed at finding improvement suggestions. The search query must be phrased as a question. Your answer must adhere to the following JSON Schema.

JSON Schema:
%s`

const queryUserTemplate = `Create a concise search query aimed at finding improvement suggestions that address the common process weakness mentioned in the following Texts.

Texts:
%s`

// QueryMessages builds the conversation for generating one cluster's search
// query from its member weakness texts.
func QueryMessages(weaknessTexts []string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(querySystemTemplate, querySchema.JSON())},
		{Role: llm.RoleUser, Content: fmt.Sprintf(queryUserTemplate, FormatContext(weaknessTexts))},
	}
}

const suggestionSystemTemplate = `As an assistant dedicated to supporting airline operations, you are presented with Questions asking for improvement suggestions for specific process weaknesses. For each Question, generate a corresponding suggestion based on the provided Context Information. Do not make up any suggestions but only use the Context Information to generate suggestions. Your answer must adhere to the following JSON Schema.

JSON Schema:
%s`

const suggestionUserTemplate = `You are presented with a Question asking for a process improvement suggestion. Generate one corresponding suggestion based on the provided Context Information.

Context Information:
%s

Question: %s
`

// SuggestionMessages builds the conversation for generating one cluster's
// suggestion from its query and reranked context.
func SuggestionMessages(query string, context []string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(suggestionSystemTemplate, suggestionSchema.JSON())},
		{Role: llm.RoleUser, Content: fmt.Sprintf(suggestionUserTemplate, FormatContext(context), query)},
	}
}

const answerSystemTemplate = `You are an assistant dedicated to supporting airline operations. Your task is to generate very concise texts that provide improvement suggestions for the process weaknesses described in Tweets. Do not make up any suggestions but only use the provided Tweets and Context Information to generate suggestions. Moreover, do not provide multiple suggestions for a weakness. Your answer must adhere to the following JSON Schema.

JSON Schema:
%s`

const answerUserTemplate = `Use the Tweet and the Context Information to generate a very concise text that provides an improvement suggestion for each process weakness described in the Tweet.

Context Information:
%s

Tweet: %s
`

// AnswerMessages builds the conversation for synthesizing one feedback item's
// final answer from its deduplicated suggestions.
func AnswerMessages(feedbackText string, suggestions []string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(answerSystemTemplate, answerSchema.JSON())},
		{Role: llm.RoleUser, Content: fmt.Sprintf(answerUserTemplate, FormatContext(suggestions), feedbackText)},
	}
}
