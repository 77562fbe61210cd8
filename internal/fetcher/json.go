package fetcher

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/sells-group/source-matcher/internal/resilience"
)

// DecodeJSONObject decodes a single JSON object from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}

// DecodeBody decodes a response body from service. A body that does not
// decode is reported as a *resilience.StatusError so callers treat it as a
// response failure rather than a connect failure.
func DecodeBody[T any](service string, body []byte) (*T, error) {
	obj, err := DecodeJSONObject[T](bytes.NewReader(body))
	if err != nil {
		return nil, &resilience.StatusError{Service: service, Code: http.StatusOK, Body: string(body)}
	}
	return obj, nil
}

// Scalar is a string response field that services sometimes send as a
// number or boolean.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*s = ""
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return eris.Wrap(err, "json: decode scalar")
		}
		*s = Scalar(v)
	default:
		*s = Scalar(b)
	}
	return nil
}

// String returns the underlying string.
func (s Scalar) String() string { return string(s) }
