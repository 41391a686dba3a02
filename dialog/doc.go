/*
Package dialog implements multi-turn conversation flows over an explicit
frame stack.

A Dialog is a resumable unit of conversation. Active dialogs live on a flat
stack of frames, each frame holding the dialog id and a JSON-serializable
state map, so a conversation can be suspended at the end of a turn, persisted
and resumed when the next activity arrives. Pushing a child suspends the
parent; when the child ends, the parent's ResumeDialog receives its result.

Prompts are dialogs that ask, wait for the user's next activity and validate
it before resolving. EventPrompt waits for a named event activity instead of
user input, which is how a skill receives token hand-off responses.
*/
package dialog
