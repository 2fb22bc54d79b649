// Package gemini provides model services backed by the Google Gemini API
// through generative-ai-go.
//
// Embeddings are requested with BatchEmbedContents using the retrieval
// document task type; queries use the retrieval query task type.
package gemini
