package forward

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailforward/internal/model"
)

func testConfig(endpoint string) model.ForwarderConfig {
	return model.ForwarderConfig{
		Kind:          model.ForwarderElastic,
		Endpoint:      endpoint,
		APIKey:        "00000000-0000-0000-0000-000000000000",
		From:          "youremail@yourdomain.com",
		FromName:      "Your Company Name",
		To:            "recipient@test.com",
		Transactional: true,
		TimeoutSec:    5,
	}
}

func TestElasticForwardPostsForm(t *testing.T) {
	var got url.Values
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		got, _ = url.ParseQuery(string(body))
		_, _ = w.Write([]byte(`{"success":true,"data":{"transactionid":"t1"}}`))
	}))
	t.Cleanup(srv.Close)

	e := NewElastic(testConfig(srv.URL), zerolog.Nop())
	err := e.Forward(context.Background(), model.MessageRecord{
		Subject: "New sale",
		From:    "buyer@example.org",
		Body:    "Plan: Pro\nBuyer: buyer@example.org",
	})
	require.NoError(t, err)

	assert.Equal(t, "application/x-www-form-urlencoded", contentType)
	assert.Equal(t, url.Values{
		"from":            {"buyer@example.org"},
		"fromName":        {"buyer@example.org"},
		"apikey":          {"00000000-0000-0000-0000-000000000000"},
		"subject":         {"New sale"},
		"to":              {"recipient@test.com"},
		"bodyHtml":        {"Plan: Pro\nBuyer: buyer@example.org"},
		"bodyText":        {"Plan: Pro\nBuyer: buyer@example.org"},
		"isTransactional": {"true"},
	}, got)
}

func TestElasticForwardUsesDefaultSender(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		got = r.PostForm
	}))
	t.Cleanup(srv.Close)

	e := NewElastic(testConfig(srv.URL), zerolog.Nop())
	require.NoError(t, e.Forward(context.Background(), model.MessageRecord{Subject: "s"}))

	assert.Equal(t, "youremail@yourdomain.com", got.Get("from"))
	assert.Equal(t, "Your Company Name", got.Get("fromName"))
}

func TestElasticForwardErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"unauthorized", http.StatusUnauthorized, `{"success":false,"error":"bad key"}`},
		{"api rejection", http.StatusOK, `{"success":false,"error":"Incorrect apikey"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			t.Cleanup(srv.Close)

			e := NewElastic(testConfig(srv.URL), zerolog.Nop())
			err := e.Forward(context.Background(), model.MessageRecord{From: "a@b.com"})
			assert.Error(t, err)
		})
	}
}

func TestElasticVerifiesCertificatesByDefault(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true}`))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	err := NewElastic(cfg, zerolog.Nop()).Forward(context.Background(), model.MessageRecord{})
	require.Error(t, err, "self-signed certificate must be rejected")

	cfg.InsecureSkipVerify = true
	err = NewElastic(cfg, zerolog.Nop()).Forward(context.Background(), model.MessageRecord{})
	assert.NoError(t, err)
}

func TestElasticTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	err := NewElastic(testConfig(endpoint), zerolog.Nop()).
		Forward(context.Background(), model.MessageRecord{})
	assert.Error(t, err)
}
