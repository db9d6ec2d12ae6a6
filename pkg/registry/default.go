package registry

// builtinPersona is the system prompt of the built-in fallback agent. It lets
// a fresh install talk to an agent before any profile has been authored.
const builtinPersona = `You are the default assistant for this project.

Answer questions directly and keep replies concise. Read files and list
directories under the project root to gather context, and write files when
the user asks you to; overwrites of existing files always go through the
user's confirmation prompt.

If a more specialised agent profile exists for the task, suggest mentioning
it (for example "@writer draft the post").`

// builtinProfile synthesizes the fallback profile for the configured default
// mention. A profile file with the same name in either layer shadows it. The
// empty allowlist permits every tool; overwrites still require confirmation.
func builtinProfile(name string) *AgentProfile {
	return &AgentProfile{
		Name:        name,
		Description: "Built-in default assistant",
		Persona:     builtinPersona,
		Origin:      "builtin",
	}
}
