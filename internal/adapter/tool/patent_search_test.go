package tool

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatentSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patent/", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("X-Api-Key"))
		assert.Contains(t, r.URL.Query().Get("q"), "drone delivery")

		json.NewEncoder(w).Encode(map[string]any{
			"patents": []map[string]string{
				{
					"patent_id":       "11111111",
					"patent_title":    "Autonomous drone delivery system",
					"patent_abstract": "A system for delivering packages via drones.",
					"patent_date":     "2023-05-02",
				},
				{
					"patent_id":    "22222222",
					"patent_title": "Drone routing method",
					"patent_date":  "2022-01-18",
				},
			},
		})
	}))
	t.Cleanup(srv.Close)

	ps := NewPatentSearchTool(srv.URL, "key-1", testLogger())
	result, err := ps.Execute(t.Context(), json.RawMessage(`{"query": "drone delivery"}`))
	require.NoError(t, err)
	require.False(t, result.IsError)

	parsed, err := ParsePatentResults(result.Content)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "11111111", parsed[0].PatentID)
	assert.Equal(t, "Autonomous drone delivery system", parsed[0].Title)
	assert.Contains(t, parsed[0].URL, "11111111")
}

func TestPatentSearchThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "throttled", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	ps := NewPatentSearchTool(srv.URL, "", testLogger())
	result, err := ps.Execute(t.Context(), json.RawMessage(`{"query": "anything"}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.True(t, result.IsRetryable, "rate limiting is transient")
}

func TestPatentSearchEmptyQuery(t *testing.T) {
	ps := NewPatentSearchTool("https://search.patentsview.org/api/v1", "", testLogger())
	result, err := ps.Execute(t.Context(), json.RawMessage(`{"query": ""}`))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
