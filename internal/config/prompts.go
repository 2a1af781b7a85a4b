package config

import "strings"

// TargetLanguagePlaceholder is replaced with the requested language in prompts
const TargetLanguagePlaceholder = "{{TARGET_LANGUAGE}}"

// DefaultTargetLanguage is used when no translation language is configured
const DefaultTargetLanguage = "Chinese"

// Default system prompts
const (
	DefaultSummaryPrompt = "You are a helpful assistant who summarizes conversations in {{TARGET_LANGUAGE}}.\n" +
		"Review the provided transcript segments and produce a concise paragraph covering the important points.\n" +
		"Do not include system messages or safety policies; respond with summary text only."

	DefaultOptimizePrompt = "You are a friendly conversation coach.\n" +
		"Rewrite the provided text so it sounds natural and conversational while keeping the original meaning.\n" +
		"Preserve key information, stay concise, and respond in the same language as the input.\n" +
		"Return only the rewritten text without commentary."

	DefaultGeminiTranslatePrompt = "You are a professional translation assistant.\n" +
		"Translate user text into {{TARGET_LANGUAGE}}.\n" +
		"Requirements:\n" +
		"1) Preserve the tone and intent of the original text.\n" +
		"2) Provide natural and fluent translations.\n" +
		"3) If the input is already in {{TARGET_LANGUAGE}}, return it unchanged.\n" +
		"4) Respond with the translation only without additional commentary."

	DefaultTitlePrompt = "You are a helpful assistant who writes concise conversation titles in {{TARGET_LANGUAGE}}.\n" +
		"Summarize the provided conversation transcript into one short, descriptive sentence.\n" +
		"Only return the title without extra commentary."
)

// RenderPrompt substitutes the target language into a prompt template
func RenderPrompt(template, targetLanguage string) string {
	return strings.ReplaceAll(template, TargetLanguagePlaceholder, targetLanguage)
}
