// Package secret resolves credentials written into configuration files.
//
// A configuration value may reference the environment or a provider:
//
//	api_key: ${GROQ_API_KEY}
//	api_key: secretref:env:GROQ_API_KEY
//	api_key: secretref:file:groq_api_key
//
// ${VAR} expansion is strict: a missing variable is an error, not an empty
// string. "$$" escapes a literal dollar sign. The env and file providers are
// registered in DefaultRegistry.
package secret
