package forward

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailforward/internal/model"
)

// maxResponseBody bounds how much of the API response is read.
const maxResponseBody = 64 * 1024

// Elastic forwards records through the Elastic Email HTTP send API.
type Elastic struct {
	cfg        model.ForwarderConfig
	httpClient *http.Client
	log        zerolog.Logger
}

// apiResponse is the envelope every Elastic Email API call returns.
type apiResponse struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

// NewElastic creates an HTTP forwarder. Certificate verification is on
// unless cfg.InsecureSkipVerify is set.
func NewElastic(cfg model.ForwarderConfig, log zerolog.Logger) *Elastic {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Elastic{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		log: log.With().Str("component", "forward.elastic").Logger(),
	}
}

// Forward sends rec to the configured recipients.
func (e *Elastic) Forward(ctx context.Context, rec model.MessageRecord) error {
	return e.Send(ctx, buildRequest(e.cfg, rec))
}

// Send issues one blocking POST for req. Transport failures, non-2xx
// statuses and unsuccessful API responses are returned as errors.
func (e *Elastic) Send(ctx context.Context, req SendRequest) error {
	form := req.form()

	e.log.Debug().
		Str("endpoint", e.cfg.Endpoint).
		Str("from", req.From).
		Str("to", req.To).
		Str("subject", req.Subject).
		Int("body_len", len(req.BodyText)).
		Msg("sending request")

	httpReq, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.cfg.Endpoint, strings.NewReader(form.Encode()),
	)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("executing request POST %s: %w", e.cfg.Endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	e.log.Debug().
		Int("status", resp.StatusCode).
		Str("result", string(respBody)).
		Msg("send result")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf(
			"unexpected status %d on POST %s: %s",
			resp.StatusCode, e.cfg.Endpoint, string(respBody),
		)
	}

	var result apiResponse
	if json.Unmarshal(respBody, &result) == nil && !result.Success && result.Error != "" {
		return fmt.Errorf("send rejected: %s", result.Error)
	}

	return nil
}

// form encodes the request with the field names the API expects.
func (r SendRequest) form() url.Values {
	return url.Values{
		"from":            {r.From},
		"fromName":        {r.FromName},
		"apikey":          {r.APIKey},
		"subject":         {r.Subject},
		"to":              {r.To},
		"bodyHtml":        {r.BodyHTML},
		"bodyText":        {r.BodyText},
		"isTransactional": {strconv.FormatBool(r.IsTransactional)},
	}
}
