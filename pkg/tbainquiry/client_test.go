package tbainquiry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/source-matcher/internal/resilience"
)

func samplePayload() Payload {
	return Payload{
		ClientID:     "1234",
		FileName:     "TEMP.MAINFRAME.FILE",
		Fields:       []any{map[string]any{"inquiryDefName": "TEMP_TBA_FIELD"}},
		Participants: []map[string]string{{"pid": "000012345"}},
	}
}

func TestInquire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		b, _ := io.ReadAll(r.Body)
		var got map[string]any
		require.NoError(t, json.Unmarshal(b, &got))
		assert.Equal(t, map[string]any{"url": "http://tba.local"}, got["tbaUrl"])
		data := got["inquiryData"].([]any)[0].(map[string]any)
		assert.Equal(t, "1234", data["clientId"])
		assert.Equal(t, map[string]any{"fields": []any{}, "date": ""}, data["inquiry"])

		w.Write([]byte(`[
			[{"TEMP_TBA_FIELD":[{"TEMP_TBA_FIELD":"A","UNMASKEDSSN_INTERNALID":"I-1"}]}],
			[{"index":1,"pid":"000099999","errorDescription":"Participant not on file"}]
		]`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	resp, err := c.Inquire(context.Background(), &Request{
		TBAURL:      TBAURL{URL: "http://tba.local"},
		InquiryData: []Payload{{ClientID: "1234", Inquiry: Inquiry{Fields: []string{}}}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Found, 1)
	require.Len(t, resp.Failed, 1)
	assert.Equal(t, 1, resp.Failed[0].Index)
	assert.Equal(t, "Participant not on file", resp.Failed[0].ErrorDescription)
	assert.Equal(t, "000099999", resp.Failed[0].IDs["pid"])
}

func TestInquireErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		code   int
	}{
		{name: "server_error", status: http.StatusInternalServerError, body: "boom", code: 500},
		{name: "bad_request", status: http.StatusBadRequest, body: "bad", code: 400},
		{name: "malformed", status: http.StatusOK, body: `{"not":"a list"}`, code: 200},
		{name: "three_parts", status: http.StatusOK, body: `[[],[],[]]`, code: 200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(WithBaseURL(srv.URL)).Inquire(context.Background(), &Request{})
			require.Error(t, err)
			assert.Equal(t, tt.code, resilience.StatusCode(err))
			assert.False(t, resilience.IsConnect(err))
		})
	}
}

func TestInquireConnectError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	_, err := NewClient(WithBaseURL(addr)).Inquire(context.Background(), &Request{})
	require.Error(t, err)
	assert.True(t, resilience.IsConnect(err))
}

func TestEmptyResponse(t *testing.T) {
	var r Response
	require.NoError(t, json.Unmarshal([]byte(`[]`), &r))
	assert.Empty(t, r.Found)
	assert.Empty(t, r.Failed)
}

func TestPayloadEmpty(t *testing.T) {
	p := samplePayload()
	assert.False(t, p.Empty())

	noPpt := samplePayload()
	noPpt.Participants = nil
	assert.True(t, noPpt.Empty())

	noFields := samplePayload()
	noFields.Fields = nil
	assert.True(t, noFields.Empty())

	eventsOnly := noFields
	eventsOnly.EventHistory = []any{map[string]any{"eventHistDefName": "EVT"}}
	assert.False(t, eventsOnly.Empty())
}
