package gemini

import "fmt"

// DefaultImagePrompt illustrates a turn whose story carried no image line.
const DefaultImagePrompt = "A pixel art style image in 16:9 aspect ratio of a post-apocalyptic world with zombies and limited resources, evoking a sense of survival and adventure."

// DefaultSeparator marks the image description line at the end of a story turn.
const DefaultSeparator = "IMAGE:"

const narratorRole = `You are the narrator of an interactive adventure. Tell a gripping zombie survival story with a pixel art feel.`

const turnRules = `Keep it to two short paragraphs at most. Be concise and vivid, skip needless detail, and ALWAYS finish with a question that invites the player's next decision (for example "What do you do now?" or "Where do you head?").

IMPORTANT: At the very end ALWAYS add a separate line that starts EXACTLY with "%s" followed by a short English description, at most 50 words, for a pixel art image of %s. This line is MANDATORY.`

func initialPrompt(separator string) string {
	return narratorRole + `

Write the opening scene: the player wakes in a post-apocalyptic world, surrounded by zombies and short on supplies. Describe the surroundings, their fears and their hopes as they prepare for what is coming.

` + fmt.Sprintf(turnRules, separator, "the opening scene")
}

func continuePrompt(separator, history, action string) string {
	return narratorRole + fmt.Sprintf(`

Continue the story from the context below and the player's latest action. The story so far:
%s

The player's latest action was: "%s"

Describe the consequences of that action and how it changes the surroundings, the characters and the dangers ahead. Stay consistent with the tone set so far.

`, history, action) + fmt.Sprintf(turnRules, separator, "the current scene")
}

func imagePrompt(description string) string {
	return fmt.Sprintf(`Generate a pixel art style image in 16:9 aspect ratio for the following description: %s.
Use 8-bit colors and simple shapes for a nostalgic, charming rendering of the scene. Provide the image in landscape format (16:9 aspect ratio).`, description)
}
