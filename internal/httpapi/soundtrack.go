package httpapi

import (
	"io"
	"net/http"

	"sms-engine/internal/queue"
	"sms-engine/internal/soundtrack"
)

// handleReplaceSoundtrack reads the request body as soundtrack source text,
// parses it with the configured Parser, and enqueues the result as a
// KindReplaceSoundtrack command — the one verb commands.go's table can't
// cover, since it needs a *soundtrack.Soundtrack rather than a scalar field.
func handleReplaceSoundtrack(sink Sink, parser soundtrack.Parser) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		req.Body = http.MaxBytesReader(w, req.Body, 1<<20)
		body, err := io.ReadAll(req.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "body too large or unreadable")
			return
		}

		st, err := parser.ParseNew(body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		sink.Enqueue(queue.ReplaceSoundtrack(st))
		w.WriteHeader(http.StatusAccepted)
	}
}
