/*
Package router dispatches each turn: recognized intents start skill
invocations looked up through registered manifests, activities belonging to
an active flow continue it, and interruptions (cancel, help, logout) cut in
ahead of whatever is running.

A skill invocation is itself a dialog. It opens a transport channel to the
skill's endpoint, announces the action with a skillBegin event, forwards the
user's activities and relays the skill's replies back, answering the skill's
token requests in between. The invocation ends when the skill sends
endOfConversation.

Running in skill mode the router also reconciles its own completion upward:
exactly one endOfConversation is emitted to the caller per invocation,
whether the flow completed, was cancelled by the user, or was cancelled
remotely by the caller.
*/
package router
