package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"questmap.app/internal/campaign"
	"questmap.app/internal/geo"
	"questmap.app/internal/protocol"
	"questmap.app/internal/tiles"
)

// ErrPolicyHidden reports a trail the campaign policy hides from this viewer.
// It is surfaced distinctly from transient failures and never auto-retried.
var ErrPolicyHidden = errors.New("client: trail hidden by campaign policy")

// APIError is a non-2xx response from the campaign service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("campaign api: status=%d code=%s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("campaign api: status=%d code=%s", e.Status, e.Code)
}

// IsPermission reports errors that mean "you may not", as opposed to "it
// broke". These get their own user-facing message and no automatic retry.
func IsPermission(err error) bool {
	if errors.Is(err, ErrPolicyHidden) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
			return true
		}
		switch apiErr.Code {
		case protocol.ErrNoPermission, protocol.ErrCampaignDenied, protocol.ErrPolicyHidden:
			return true
		}
	}
	return false
}

// IsTransient reports failures worth keeping last-known-good state for and
// surfacing as a dismissable notice.
func IsTransient(err error) bool {
	if err == nil || IsPermission(err) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests
	}
	var vErr *campaign.ValidationError
	if errors.As(err, &vErr) {
		return false
	}
	return true
}

type Client struct {
	base   string
	token  string
	http   *http.Client
	logger *log.Logger
}

func New(baseURL, token string, logger *log.Logger) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("client: base URL is required")
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "https://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL: %s", baseURL)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		base:   strings.TrimRight(u.String(), "/"),
		token:  strings.TrimSpace(token),
		logger: logger,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// VisibleFeed is the position feed scoped to the viewer's permitted radius.
type VisibleFeed struct {
	Radius     float64
	ViewerRole campaign.MembershipRole
	Positions  []campaign.Position
}

func (c *Client) VisiblePositions(ctx context.Context, campaignID string, radius float64) (*VisibleFeed, error) {
	q := url.Values{}
	if radius > 0 {
		q.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	}
	raw, err := c.do(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(campaignID)+"/players/visible", q, nil)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("client: decode visible positions: %w", err)
	}
	feed := &VisibleFeed{}
	if r, ok := body["radius"].(float64); ok {
		feed.Radius = r
	}
	if role, ok := body["viewerRole"].(string); ok {
		feed.ViewerRole = campaign.MembershipRole(role)
	} else if role, ok := body["viewer_role"].(string); ok {
		feed.ViewerRole = campaign.MembershipRole(role)
	}
	rows := collectionRows(body, "features", "positions")
	feed.Positions = make([]campaign.Position, 0, len(rows))
	for _, row := range rows {
		pos, err := campaign.NormalizePosition(flattenFeature(row))
		if err != nil {
			// A malformed record never takes the whole feed down.
			c.logger.Printf("[client] skip position record: %v", err)
			continue
		}
		feed.Positions = append(feed.Positions, pos)
	}
	return feed, nil
}

func (c *Client) Roster(ctx context.Context, campaignID string) ([]campaign.RosterRow, error) {
	raw, err := c.do(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(campaignID)+"/characters", nil, nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(raw, "characters", "roster")
	if err != nil {
		return nil, fmt.Errorf("client: decode roster: %w", err)
	}
	out := make([]campaign.RosterRow, 0, len(rows))
	for _, row := range rows {
		r := campaign.NormalizeRosterRow(row)
		if r.MembershipID == "" {
			c.logger.Printf("[client] skip roster row without membership id")
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *Client) Trail(ctx context.Context, campaignID, playerID string, radius float64) ([]geo.Point, error) {
	q := url.Values{}
	if radius > 0 {
		q.Set("radius", strconv.FormatFloat(radius, 'f', -1, 64))
	}
	path := "/campaigns/" + url.PathEscape(campaignID) + "/players/" + url.PathEscape(playerID) + "/trail"
	raw, err := c.do(ctx, http.MethodGet, path, q, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusForbidden {
			return nil, ErrPolicyHidden
		}
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("client: decode trail: %w", err)
	}
	if g, ok := body["geometry"]; ok {
		return campaign.NormalizeLine(g), nil
	}
	return campaign.NormalizeLine(body), nil
}

type movePayload struct {
	Target     *movePoint `json:"target,omitempty"`
	SpawnID    string     `json:"spawnId,omitempty"`
	LocationID string     `json:"locationId,omitempty"`
	Mode       string     `json:"mode"`
	Reason     string     `json:"reason,omitempty"`
}

type movePoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Move validates the request locally, then submits it. There is no meaningful
// response body beyond success or failure.
func (c *Client) Move(ctx context.Context, campaignID, playerID string, req campaign.MovementRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	payload := movePayload{
		SpawnID:    req.SpawnID,
		LocationID: req.LocationID,
		Mode:       string(req.Mode),
		Reason:     req.Reason,
	}
	if req.Target != nil {
		payload.Target = &movePoint{X: req.Target.X, Y: req.Target.Y}
	}
	path := "/campaigns/" + url.PathEscape(campaignID) + "/players/" + url.PathEscape(playerID) + "/move"
	_, err := c.do(ctx, http.MethodPost, path, nil, payload)
	return err
}

func (c *Client) WorldMap(ctx context.Context, campaignID string) (*campaign.WorldMap, error) {
	raw, err := c.do(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(campaignID)+"/map", nil, nil)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("client: decode world map: %w", err)
	}
	if inner, ok := body["map"].(map[string]any); ok {
		body = inner
	}
	w := campaign.NormalizeWorldMap(body)
	return &w, nil
}

func (c *Client) TileSets(ctx context.Context, campaignID string) ([]tiles.Config, error) {
	raw, err := c.do(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(campaignID)+"/tilesets", nil, nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(raw, "tileSets", "tile_sets", "tilesets")
	if err != nil {
		return nil, fmt.Errorf("client: decode tile sets: %w", err)
	}
	out := make([]tiles.Config, 0, len(rows))
	for _, row := range rows {
		cfg := campaign.NormalizeTileSet(row)
		if cfg.BaseURL == "" {
			c.logger.Printf("[client] skip tile set %q without base URL", cfg.ID)
			continue
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (c *Client) Locations(ctx context.Context, campaignID string) ([]campaign.CampaignLocation, error) {
	raw, err := c.do(ctx, http.MethodGet, "/campaigns/"+url.PathEscape(campaignID)+"/locations", nil, nil)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(raw, "locations", "spawns")
	if err != nil {
		return nil, fmt.Errorf("client: decode locations: %w", err)
	}
	out := make([]campaign.CampaignLocation, 0, len(rows))
	for _, row := range rows {
		loc := campaign.NormalizeLocation(row)
		if loc.ID == "" {
			continue
		}
		out = append(out, loc)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encode body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("client: read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return data, nil
	}
	apiErr := &APIError{Status: resp.StatusCode}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return nil, apiErr
}

// decodeRows accepts either a bare JSON array or an object wrapping the array
// under one of the given keys.
func decodeRows(raw []byte, keys ...string) ([]map[string]any, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return anyRows(t), nil
	case map[string]any:
		return collectionRows(t, keys...), nil
	default:
		return nil, fmt.Errorf("unexpected payload shape")
	}
}

func collectionRows(body map[string]any, keys ...string) []map[string]any {
	for _, k := range keys {
		if arr, ok := body[k].([]any); ok {
			return anyRows(arr)
		}
	}
	return nil
}

func anyRows(arr []any) []map[string]any {
	out := make([]map[string]any, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// flattenFeature folds a GeoJSON-like feature's properties up to the top
// level so the normalization boundary sees one flat record.
func flattenFeature(row map[string]any) map[string]any {
	props, ok := row["properties"].(map[string]any)
	if !ok {
		return row
	}
	flat := make(map[string]any, len(props)+2)
	for k, v := range props {
		flat[k] = v
	}
	if _, has := flat["geometry"]; !has {
		if g, ok := row["geometry"]; ok {
			flat["geometry"] = g
		}
	}
	if _, has := flat["id"]; !has {
		if id, ok := row["id"]; ok {
			flat["id"] = id
		}
	}
	return flat
}
