package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const maxBodyBytes = 1 << 20

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Error        string `json:"error,omitempty"`
	ErrorDesc    string `json:"error_description,omitempty"`
}

// deviceClient implements the two RFC 8628 calls every provider kind shares.
type deviceClient struct {
	cfg       Config
	http      *http.Client
	deviceURL string
	tokenURL  string
}

func newDeviceClient(cfg Config, deviceURL, tokenURL string) deviceClient {
	return deviceClient{cfg: cfg, http: cfg.httpClient(), deviceURL: deviceURL, tokenURL: tokenURL}
}

func (d deviceClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, d.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (d deviceClient) clientValues() url.Values {
	v := url.Values{}
	v.Set("client_id", d.cfg.ClientID)
	if d.cfg.ClientSecret != "" {
		v.Set("client_secret", d.cfg.ClientSecret)
	}
	return v
}

// postForm sends an authenticated form POST and returns status and body.
func (d deviceClient) postForm(ctx context.Context, op, endpoint string, values url.Values) (int, []byte, error) {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return 0, nil, &ProtocolError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := d.http.Do(req)
	if err != nil {
		return 0, nil, &TransportError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Op: op, Err: err}
	}
	return resp.StatusCode, body, nil
}

func (d deviceClient) requestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	const op = "request device code"
	values := d.clientValues()
	if len(d.cfg.Scopes) > 0 {
		values.Set("scope", strings.Join(d.cfg.Scopes, " "))
	}
	status, body, err := d.postForm(ctx, op, d.deviceURL, values)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		perr := &ProtocolError{Op: op, StatusCode: status, Body: truncate(body)}
		var oe tokenResponse
		if json.Unmarshal(body, &oe) == nil {
			perr.Code, perr.Description = oe.Error, oe.ErrorDesc
		}
		return nil, perr
	}
	var payload struct {
		DeviceCode
		Error     string `json:"error"`
		ErrorDesc string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProtocolError{Op: op, StatusCode: status, Body: truncate(body), Err: err}
	}
	if payload.Error != "" {
		return nil, &ProtocolError{Op: op, StatusCode: status, Code: payload.Error, Description: payload.ErrorDesc}
	}
	if payload.DeviceCode.DeviceCode == "" {
		return nil, &ProtocolError{Op: op, StatusCode: status, Body: truncate(body), Err: errors.New("response without device_code")}
	}
	dc := payload.DeviceCode
	return &dc, nil
}

func (d deviceClient) pollForToken(ctx context.Context, deviceCode string) (*oauth2.Token, error) {
	const op = "poll for token"
	values := d.clientValues()
	values.Set("grant_type", GrantTypeDeviceCode)
	values.Set("device_code", deviceCode)
	status, body, err := d.postForm(ctx, op, d.tokenURL, values)
	if err != nil {
		return nil, err
	}
	// GitHub reports pending states with 200, RFC 8628 servers with 400.
	var payload tokenResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &ProtocolError{Op: op, StatusCode: status, Body: truncate(body), Err: err}
	}
	switch payload.Error {
	case "":
	case "authorization_pending":
		return nil, ErrAuthorizationPending
	case "slow_down":
		return nil, ErrSlowDown
	case "expired_token":
		return nil, ErrExpiredToken
	case "access_denied":
		return nil, ErrAccessDenied
	default:
		return nil, &ProtocolError{Op: op, StatusCode: status, Code: payload.Error, Description: payload.ErrorDesc}
	}
	if status < 200 || status > 299 {
		return nil, &ProtocolError{Op: op, StatusCode: status, Body: truncate(body)}
	}
	if payload.AccessToken == "" {
		return nil, &ProtocolError{Op: op, StatusCode: status, Err: errors.New("response without access_token")}
	}
	tok := &oauth2.Token{
		AccessToken:  payload.AccessToken,
		TokenType:    payload.TokenType,
		RefreshToken: payload.RefreshToken,
	}
	if payload.ExpiresIn > 0 {
		tok.Expiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return tok.WithExtra(map[string]interface{}{"scope": payload.Scope}), nil
}

// getJSON sends an authenticated GET and decodes a JSON object into v.
func (d deviceClient) getJSON(ctx context.Context, op, endpoint, accessToken string, v interface{}) error {
	ctx, cancel := d.withTimeout(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &ProtocolError{Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	resp, err := d.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProtocolError{Op: op, StatusCode: resp.StatusCode, Body: truncate(body)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &ProtocolError{Op: op, StatusCode: resp.StatusCode, Body: truncate(body), Err: err}
	}
	return nil
}

// TokenScope returns the scope the provider granted with tok, if any.
func TokenScope(tok *oauth2.Token) string {
	if tok == nil {
		return ""
	}
	s, _ := tok.Extra("scope").(string)
	return s
}
