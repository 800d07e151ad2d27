// Package llmkit provides a provider-agnostic streaming core for chat LLMs.
//
// Design goals:
//   - Stable domain model: callers build requests using canonical types (Request, Message, ToolDefinition).
//   - One event protocol: every backend adapter translates its raw wire chunks into canonical
//     StreamEvent values and can finalize a StreamState into the same Response a non-streaming
//     call would have produced.
//   - Composable cross-cutting behavior: the pipeline package runs ordered middleware hooks
//     around each request, stream event and turn; partialjson and thread build on it.
//
// Backend adapters live under providers/ and are responsible for mapping between each
// provider's wire format and the canonical model. Adding a provider never touches the
// pipeline or the accumulator.
package llmkit
