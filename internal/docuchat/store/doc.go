// Package store provides the vector storage layer for the chat core.
//
// It defines the VectorIndex abstraction plus an in-memory backend used
// by default and a Milvus backend for deployments with an external
// vector database.
package store
