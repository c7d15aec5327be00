// Package api talks to the server's REST endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/CodinGakpo/DebateIT/cli/internal/dns"
	"github.com/CodinGakpo/DebateIT/cli/internal/signaling"
)

var (
	ErrNotFound = errors.New("room not found")
	ErrServer   = errors.New("server error")
)

type CreatedRoom struct {
	Code      string    `json:"room_code"`
	CreatedAt time.Time `json:"created_at"`
}

type RoomSummary struct {
	Code         string                  `json:"room_code"`
	CreatedAt    time.Time               `json:"created_at"`
	Origin       string                  `json:"origin"`
	Participants []signaling.Participant `json:"participants"`
}

type apiError struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// URLs resolves API paths against the configured server.
type URLs interface {
	APIURL(p string) string
}

type Client struct {
	urls URLs
	http *resty.Client
}

// New returns a client for urls. A non-nil resolver is used for dialing.
func New(urls URLs, resolver *dns.Resolver) *Client {
	c := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Accept", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if resolver != nil {
		c.SetTransport(&http.Transport{
			Proxy:       http.ProxyFromEnvironment,
			DialContext: resolver.DialContext,
		})
	}
	return &Client{urls: urls, http: c}
}

// CreateRoom asks the server for a fresh room.
func (c *Client) CreateRoom(ctx context.Context) (CreatedRoom, error) {
	var out CreatedRoom
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Post(c.urls.APIURL("/api/rooms"))
	if err != nil {
		return CreatedRoom{}, fmt.Errorf("create room: %w", err)
	}
	if resp.IsError() {
		return CreatedRoom{}, responseError("create room", resp, apiErr)
	}
	return out, nil
}

// Room fetches the summary of an active room.
func (c *Client) Room(ctx context.Context, code string) (RoomSummary, error) {
	var out RoomSummary
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&apiErr).
		Get(c.urls.APIURL("/api/rooms/" + url.PathEscape(code)))
	if err != nil {
		return RoomSummary{}, fmt.Errorf("get room: %w", err)
	}
	if resp.IsError() {
		return RoomSummary{}, responseError("get room", resp, apiErr)
	}
	return out, nil
}

func responseError(op string, resp *resty.Response, apiErr apiError) error {
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	detail := apiErr.Error
	if detail == "" {
		detail = resp.Status()
	}
	return fmt.Errorf("%s: %w: %s", op, ErrServer, detail)
}
