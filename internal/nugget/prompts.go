// Package nugget holds the model-facing half of ScribeCat's annotation
// features: lecture context extraction, nugget note writing, full markdown
// notes, and the Nugget study chat.
//
// Each feature builds a prompt, calls an [llm.Provider], and defensively
// parses the reply. The HTTP layer in internal/api and the in-process
// annotator in internal/annotate both sit on top of these types.
package nugget

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/scribecat/pkg/lecture"
)

// Transcript windows sent to the model.
const (
	contextTranscriptChars = 1500
	notesTranscriptChars   = 500
	chatTranscriptChars    = 8000
	chatNotesChars         = 4000
)

// Model call settings.
const (
	contextMaxTokens   = 300
	notesMaxTokens     = 150
	fullNotesMaxTokens = 4096
	chatMaxTokens      = 1024
	lowTemperature     = 0.2
)

func contextPrompt(transcript string, previous lecture.Context) string {
	prev, err := json.Marshal(normalise(previous))
	if err != nil {
		prev = []byte(`{"themes":[],"currentTopic":"","definitions":[],"structureHint":""}`)
	}
	return fmt.Sprintf(`Analyze this lecture transcript and extract structured context. Be very concise.

PREVIOUS CONTEXT:
%s

RECENT TRANSCRIPT:
%q

Return ONLY valid JSON (no markdown, no explanation):
{"themes":["theme1","theme2"],"currentTopic":"topic being discussed now","definitions":["term: definition"],"structureHint":"brief note about lecture flow"}`,
		prev, lecture.Tail(transcript, contextTranscriptChars))
}

func notesPrompt(transcript string, lc lecture.Context) string {
	return fmt.Sprintf(`Create 1-3 concise bullet notes from this lecture segment.

CONTEXT: %s

TRANSCRIPT:
%q

Output ONLY bullet points (no intro, no explanation). Each must start with "- ":`,
		describeContext(lc), lecture.Tail(transcript, notesTranscriptChars))
}

// describeContext renders the one-line context summary used by the notes
// prompt.
func describeContext(lc lecture.Context) string {
	if lc.CurrentTopic == "" {
		return "Lecture in progress."
	}
	themes := "general"
	if len(lc.Themes) > 0 {
		themes = strings.Join(lc.Themes, ", ")
	}
	return fmt.Sprintf("Topic: %q. Themes: %s.", lc.CurrentTopic, themes)
}

const fullNotesInstructions = `You are an expert note-taking assistant. Given the following lecture transcript, create comprehensive, well-structured notes in markdown format.

IMPORTANT GUIDELINES:
1. Use clear headings (# for main topics, ## for subtopics, ### for details)
2. Use bullet points for lists
3. Use **bold** for key terms and concepts
4. Use *italics* for emphasis
5. Create numbered lists for sequential information
6. Include blockquotes (>) for important quotes or definitions
7. Suggest diagrams where visual representations would help (use comments like <!-- DIAGRAM: [description] -->)
8. Organize information hierarchically
9. Keep the notes concise but comprehensive`

func fullNotesPrompt(transcript string) string {
	return fullNotesInstructions + "\n\nTRANSCRIPT:\n" + transcript +
		"\n\nPlease generate well-structured markdown notes from this transcript. Include diagram suggestions in HTML comments where visual aids would enhance understanding."
}

const chatPersona = `You are Nugget, a friendly and helpful study assistant for ScribeCat, a note-taking app for students. You help students understand their lecture content, answer questions, and provide study assistance.

Your personality:
- Friendly and encouraging
- Concise but thorough
- Use an occasional cat pun, but don't overdo it
- Focus on being genuinely helpful for studying
`

func chatSystemPrompt(transcript, notes string) string {
	var sb strings.Builder
	sb.WriteString(chatPersona)
	if transcript != "" {
		sb.WriteString("\n## Lecture Transcript\nThe user has provided this transcript from their lecture recording:\n\n")
		sb.WriteString(lecture.Tail(transcript, chatTranscriptChars))
		sb.WriteString("\n\n")
	}
	if notes != "" {
		sb.WriteString("\n## User's Notes\nThe user has taken these notes:\n\n")
		sb.WriteString(lecture.Tail(notes, chatNotesChars))
		sb.WriteString("\n\n")
	}
	if transcript == "" && notes == "" {
		sb.WriteString("\nNote: The user hasn't included their transcript or notes in this conversation. You can still help with general questions, but encourage them to include context for more specific help.\n")
	}
	return sb.String()
}

// normalise replaces nil slices so the context renders as [] in prompts.
func normalise(lc lecture.Context) lecture.Context {
	if lc.Themes == nil {
		lc.Themes = []string{}
	}
	if lc.Definitions == nil {
		lc.Definitions = []string{}
	}
	return lc
}
