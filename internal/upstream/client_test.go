package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/scc-sat-api/internal/models"
)

func TestSubmitSuccessWithOverrides(t *testing.T) {
	var received map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"result":"success","seatNumber":"SCC-2025-2000","ownReferralCode":"REF-SRV1234"}`))
	}))
	defer srv.Close()

	client := New(srv.URL, time.Second)
	res, err := client.Submit(context.Background(), models.StudentRecord{FullName: "Asha", SeatNumber: "SCC-2025-1285", OwnReferralCode: "REF-ASH1111"})
	require.NoError(t, err)
	assert.Equal(t, "SCC-2025-2000", res.SeatNumber)
	assert.Equal(t, "REF-SRV1234", res.OwnReferralCode)
	assert.Equal(t, "Asha", received["fullName"])
	assert.Equal(t, "SCC-2025-1285", received["seatNumber"])
}

func TestSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":"error","message":"sheet full"}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, time.Second).Submit(context.Background(), models.StudentRecord{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))
	assert.Equal(t, "sheet full", res.Message)
}

func TestSubmitHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, time.Second).Submit(context.Background(), models.StudentRecord{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestEnabled(t *testing.T) {
	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.False(t, New("", 0).Enabled())
	assert.True(t, New("http://example.test", 0).Enabled())
}
