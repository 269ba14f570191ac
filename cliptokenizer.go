// Package cliptokenizer only holds the version of the set of tools that tokenize text for CLIP text encoders.
//
// There are 3 main sub-packages:
//
//   - tokenizers/clip: the byte-level BPE tokenizer engine (encode, decode, fixed-width batches).
//   - tokenizers: creates tokenizers from HuggingFace repositories, dispatching on their tokenizer class.
//   - hub: downloads vocabulary and configuration files from HuggingFace Hub.
package cliptokenizer

// Version of the library.
// Manually kept in sync with project releases.
var Version = "v0.0.0-dev"
