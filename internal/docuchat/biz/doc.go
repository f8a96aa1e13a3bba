// Package biz implements the business logic of the document chat core.
//
// The package is split along the chat pipeline:
//   - Chunker: splits document text into bounded, overlapping chunks
//   - Retriever: embeds a query and packs the best passages into a budget
//   - Orchestrator: drives one chat request through an explicit state machine
//   - AnswerCache: caches answers in Redis, scoped per owner
//   - Service: composes the above behind the single owner-scoped boundary
package biz
