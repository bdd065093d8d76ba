// Package common provides the wire protocol and configuration shared by the
// admin RPC client and server. It defines the Message envelope, the
// MessageType catalogue, and the client/server configuration structs.
//
// Key Components:
//
//   - Message: the envelope every admin request and response travels in.
//     Value carries a JSON-encoded command-specific payload; NewRequest,
//     NewResponse and NewErrorResponse build well-formed messages.
//
//   - MessageType: one constant per admin command-catalogue row, plus
//     MsgTSuccess/MsgTError for generic responses.
//
//   - ServerConfig / ClientConfig: transport-level configuration for the
//     admin server and its clients.
package common
