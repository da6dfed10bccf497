// Package agent implements the conversational orchestrator.
//
// Each session is in exactly one mode:
//
//   - ModePlain sends the history and the question to the generator
//   - ModeRAG condenses the question into a standalone query, retrieves
//     matching chunks from the session's index and answers from them only
//   - ModeTabularTool lets the model make a single call to a tool that
//     evaluates expressions over an attached dataset, then answers from the
//     tool's result
//
// Attaching a retriever moves a session to ModeRAG and attaching a dataset
// moves it to ModeTabularTool, which is final. Every attachment announces
// itself to the model with a system message.
//
// History is written only once a turn has succeeded, and turns for the same
// session are serialized.
package agent
