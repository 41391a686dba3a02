/*
Package adapter bridges the transport's request/response model and the
turn-based activity-processing model of a skill.

Inbound, ProcessActivity feeds one activity through the middleware chain and
the bot's turn handler, returning a typed InvokeResponse (200 normal, 501
when the activity type is unsupported by the transport in use). Outbound,
SendActivities wraps each activity as a framed request, assigns missing ids,
simulates delay pseudo-activities locally, suppresses trace activities on
non-emulator channels, and records per-activity send latency. Sends within
one batch are independent: a failed slot surfaces as an error without
aborting the remaining sends.
*/
package adapter
