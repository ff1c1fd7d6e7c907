package protocol

// This package implements the LDAPv3 messages (RFC 4511) that ldapws sends to,
// and receives from, a directory server, along with their BER encoding.
//
// - `Message` - The LDAPMessage envelope: a message ID, exactly one operation
//               and an optional list of controls.
// - `Request` - An operation sent by a client (bind, search, add, ...).
// - `Op`      - Any operation, request or response. The set of operations is
//               closed; anything the decoder does not understand becomes an
//               `UnknownOp` rather than an error, so that the caller decides
//               what an unexpected message means.
//
// === General Syntax
//
//   ```
//     LDAPMessage ::= SEQUENCE {
//          messageID       MessageID,
//          protocolOp      CHOICE { ... [APPLICATION n] ... },
//          controls        [0] Controls OPTIONAL }
//   ```
//
// Messages are self-delimiting (BER definite lengths) so a single ordered byte
// stream can carry any number of them back to back. ReadMessage reads exactly
// one message from a stream, WriteMessage writes exactly one.
//
// === Message IDs
//
// The client picks the message ID, the server echoes it on every response to
// that request. A search request is answered by any number of
// SearchResultEntry/SearchResultReference messages followed by exactly one
// SearchResultDone, all carrying the same ID. Message ID 0 is reserved for
// unsolicited notifications from the server.
//
// === Filters
//
// Search filters are carried as already-encoded BER trees (see the filter
// package). This package never interprets them.
//
