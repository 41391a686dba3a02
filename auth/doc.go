/*
Package auth implements the token and authentication hand-off between a
skill and its calling bot.

A skill never talks to an OAuth service itself. Running remotely it emits a
tokens/request event and waits, bounded, for the parent's tokens/response
event; running locally it resolves tokens through a TokenProvider. When more
than one authentication connection is configured the user picks a provider
first, with the choice narrowed to connections that already hold a cached
token whenever the provider can report status.

The package also validates inbound bot-to-bot JWT bearers so a skill host
only admits activities from allowed callers.
*/
package auth
