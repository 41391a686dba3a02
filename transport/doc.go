/*
Package transport carries requests between a parent bot and a skill.

A Request is an HTTP-method-like verb plus a path of the form
/activities/{activityId}, with the activity serialized as JSON in the body.
A Response carries a numeric status code (200 success, 501 unsupported
operation) and an optional body.

Two channel implementations are provided:

  - HTTPChannel: synchronous request/response against a skill endpoint.
  - MultiplexChannel: a persistent bidirectional connection (WebSocket in
    production, any Conn in tests) where each logical request/response pair
    is correlated by an opaque request id. Responses may arrive out of send
    order and are matched by id, never by arrival order.

Channels never retry internally; retry policy belongs to the caller.
*/
package transport
