// Package provider routes recognition and language requests to the
// configured engine. Engine choice and credentials are read from a config
// snapshot on every call, so configuration changes apply to the next
// request without rebuilding the router.
//
// Recognition engines: openai (default), soniox, dashscope.
// Language engines (translate, summarize, optimize): openai (default), gemini.
package provider
