package utils

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondWithError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
	}{
		{name: "bad request", code: http.StatusBadRequest, message: "topic is required"},
		{name: "unauthorized", code: http.StatusUnauthorized, message: "Invalid or expired token"},
		{name: "bad gateway", code: http.StatusBadGateway, message: "all credentials exhausted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondWithError(w, tt.code, tt.message)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.message, response.Error)
		})
	}
}

func TestRespondWithJSON(t *testing.T) {
	w := httptest.NewRecorder()
	payload := map[string]interface{}{"count": 2, "results": []string{"a", "b"}}

	require.NoError(t, RespondWithJSON(w, http.StatusOK, payload))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":2,"results":["a","b"]}`, w.Body.String())
}

func TestRespondWithJSON_UnencodablePayload(t *testing.T) {
	w := httptest.NewRecorder()
	err := RespondWithJSON(w, http.StatusOK, map[string]interface{}{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestDecodeJSONBody(t *testing.T) {
	type body struct {
		Topic    string `json:"topic"`
		Quantity int    `json:"quantity"`
	}

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "valid object", input: `{"topic":"lanterns","quantity":3}`},
		{name: "empty body", input: ``, wantErr: true},
		{name: "unknown field", input: `{"topic":"x","colour":"red"}`, wantErr: true},
		{name: "trailing object", input: `{"topic":"x"}{"topic":"y"}`, wantErr: true},
		{name: "malformed", input: `{"topic":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/v1/prompts", strings.NewReader(tt.input))

			var dst body
			err := DecodeJSONBody(w, r, &dst, 0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "lanterns", dst.Topic)
			assert.Equal(t, 3, dst.Quantity)
		})
	}
}

func TestDecodeJSONBody_TooLarge(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"topic":"`+strings.Repeat("a", 100)+`"}`))

	var dst map[string]string
	assert.Error(t, DecodeJSONBody(w, r, &dst, 16))
}
