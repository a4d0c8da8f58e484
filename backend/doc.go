// Package backend provides the HTTP collaborators behind the answer
// orchestrator: an OpenAI-compatible chat generator (Groq by default), an
// OpenAI-compatible embedder, and a Chroma vector store retriever.
//
// Every client runs its requests through a resilience.Executor, built from
// the resilience.Policy in its configuration unless WithResilience supplies
// one. Non-2xx responses become *APIError, whose Retryable method tells the
// executor whether another attempt can help.
package backend
