package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/HenryT2023/YT-AI-Platform-sub000/internal/errors"
	"github.com/HenryT2023/YT-AI-Platform-sub000/internal/ports"
)

// DefaultMaxBodyBytes bounds request bodies read by handlers.
const DefaultMaxBodyBytes int64 = 1 << 20

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes))

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	body := map[string]string{"error": p.ErrCode}
	if p.Err != nil {
		body["message"] = p.Err.Error()
	}
	WriteJSON(w, p.Code, body)
}

// WriteAppError maps err onto a status code and error code. Upstream and internal failures
// carry their message in "error" so the browser sees what went wrong.
func WriteAppError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	code := apperrors.GetCode(err)
	switch code {
	case apperrors.ErrCodeUpstream, apperrors.ErrCodeInternal, "":
		WriteJSON(w, status, map[string]string{"error": err.Error()})
	case apperrors.ErrCodeValidation:
		body := map[string]string{"error": string(code), "message": messageOf(err)}
		if field := apperrors.GetField(err); field != "" {
			body["field"] = field
		}
		WriteJSON(w, status, body)
	default:
		WriteJSON(w, status, map[string]string{"error": string(code)})
	}
}

// WriteUpstream relays a buffered upstream response verbatim. Hop-by-hop and framing headers
// are dropped; the body length is known.
func WriteUpstream(w http.ResponseWriter, resp *ports.UpstreamResponse) {
	for k, vs := range resp.Header {
		if _, skip := relaySkipHeaders[http.CanonicalHeaderKey(k)]; skip {
			continue
		}
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	if w.Header().Get("Content-Type") == "" && len(resp.Body) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.Header().Set("Content-Length", fmt.Sprint(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if _, err := w.Write(resp.Body); err != nil {
		return
	}
}

//nolint:gochecknoglobals // read-only lookup
var relaySkipHeaders = map[string]struct{}{
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Content-Length":    {},
	"Content-Encoding":  {},
	"Set-Cookie":        {},
	"Upgrade":           {},
	"Trailer":           {},
}

// readBody reads at most limit bytes of the request body.
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperrors.Validation(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "read request body")
	}
	return body, nil
}

func messageOf(err error) string {
	var ae *apperrors.AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	return err.Error()
}
