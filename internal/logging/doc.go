// Package logging builds the slog loggers kvedit components write through.
//
// Lines go to kvedit.log and optionally a console stream, either as
// "TIME LEVEL component: message key=value" text or as JSON objects. Run
// IDs, collection names and request IDs travel in the context and are
// attached with WithContext.
package logging
