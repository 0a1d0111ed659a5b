package prompt

// Defaults is the built-in operation table. Config-defined operations are
// appended after these and shadow them by ID.
func Defaults() []Operation {
	return []Operation{
		{
			ID:          "improve",
			Instruction: "Improve the following text. Fix grammar, spelling and awkward phrasing while keeping the original meaning and tone. Reply with only the improved text, no commentary.",
		},
		{
			ID:          "translate",
			Instruction: "Translate the following text to {language}. Preserve formatting. Reply with only the translation, no commentary.",
		},
		{
			ID:          "summarize",
			Instruction: "Summarize the following text concisely. Reply with only the summary, no commentary.",
		},
		{
			ID:          "fix-grammar",
			Instruction: "Correct the grammar and spelling of the following text. Change nothing else. Reply with only the corrected text.",
		},
		{
			ID:          "explain",
			Instruction: "Explain the following text in simple terms. Reply with only the explanation.",
		},
		{
			ID:          CustomOperation,
			Instruction: "Follow this instruction for the text below: {prompt}",
		},
	}
}
