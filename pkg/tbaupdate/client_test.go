package tbaupdate

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

func serve(t *testing.T, status int, body string, check func(map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			b, _ := io.ReadAll(r.Body)
			var got map[string]any
			require.NoError(t, json.Unmarshal(b, &got))
			check(got)
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestUpdate(t *testing.T) {
	srv := serve(t, http.StatusOK, `{
		"NewUpdate": [{"identifier": 12345, "status": "success", "fields": {"TEMP_EVENT": "NEW"}}],
		"TBA_Rerun_response": [{"identifier": "12345", "eventName": "EVT", "action": "Delete", "reason": "success"}],
		"TBA_Notice_response": [{"participantId": "12345", "inquiryDefName": "NOTICE_DEF", "reason": "Not found"}],
		"TBA_pendingevents_response": [{"identifier": "12345", "inquiryDefName": "PEND_DEF", "reason": "success"}]
	}`, func(got map[string]any) {
		assert.Contains(t, got, "pendingEvents")
		cfg := got["configTables"].(map[string]any)["tbaUpdateConfig"].([]any)
		assert.Len(t, cfg, 1)
	})
	defer srv.Close()

	resp, err := NewClient(WithBaseURL(srv.URL)).Update(context.Background(), &Request{
		ConfigTables: ConfigTables{TBAUpdateConfig: []map[string]any{{"updateName": "U1"}}},
		RequestData:  []map[string]any{{"identifier": "12345"}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Fields, 1)
	assert.Equal(t, "12345", resp.Fields[0].Identifier.String())
	assert.Equal(t, "NEW", resp.Fields[0].Fields["TEMP_EVENT"].String())
	require.Len(t, resp.Reruns, 1)
	assert.Equal(t, "Delete", resp.Reruns[0].Action)
	require.Len(t, resp.Notices, 1)
	assert.Equal(t, "Not found", resp.Notices[0].Reason)
	require.Len(t, resp.Pending, 1)
	assert.Equal(t, "PEND_DEF", resp.Pending[0].InquiryDefName)
}

func TestUpdatePartialSections(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"TBA_Notice_response": []}`, nil)
	defer srv.Close()

	resp, err := NewClient(WithBaseURL(srv.URL)).Update(context.Background(), &Request{})
	require.NoError(t, err)
	assert.Empty(t, resp.Fields)
	assert.Empty(t, resp.Notices)
}

func TestUpdateErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		improper bool
		wantCode int
	}{
		{name: "no_sections", status: http.StatusOK, body: `{"message":"ok"}`, improper: true},
		{name: "not_json", status: http.StatusOK, body: `oops`, wantCode: http.StatusOK},
		{name: "server_error", status: http.StatusBadGateway, body: `bad`, wantCode: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.status, tt.body, nil)
			defer srv.Close()

			_, err := NewClient(WithBaseURL(srv.URL)).Update(context.Background(), &Request{})
			require.Error(t, err)
			if tt.improper {
				assert.ErrorIs(t, err, ErrImproperResponse)
				return
			}
			assert.Equal(t, tt.wantCode, resilience.StatusCode(err))
		})
	}
}

func TestRequestEmpty(t *testing.T) {
	assert.True(t, (&Request{}).Empty())
	assert.False(t, (&Request{Notice: []map[string]any{{"action": "Cancel"}}}).Empty())
	assert.False(t, (&Request{PendingEvents: []map[string]any{{"action": "update"}}}).Empty())
}
