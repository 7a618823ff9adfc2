// Package bilibili resolves live-room play information from the Bilibili
// live API.
package bilibili

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://api.live.bilibili.com"
	playInfoPath   = "/xlive/web-room/v2/index/getRoomPlayInfo"
	roomInfoPath   = "/xlive/web-room/v1/index/getInfoByRoom"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	requestTimeout = 10 * time.Second
)

// ErrNotLive is returned when the room exists but is not broadcasting.
var ErrNotLive = errors.New("room is not live")

// Stream is a playable live-stream endpoint.
type Stream struct {
	URL     string
	Quality string // human-readable quality label, e.g. "原画"
}

// RoomInfo is the room metadata shown at startup.
type RoomInfo struct {
	Title      string
	Anchor     string
	LiveStatus int
}

// IsLive reports whether the room is currently broadcasting.
func (r *RoomInfo) IsLive() bool { return r.LiveStatus == 1 }

// Client calls the live API. All requests carry the configured cookie string
// and a bounded timeout, so callers are never blocked indefinitely.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	cookies     string
	quality     int
	streamIndex int
}

// NewClient builds a resolver. quality is the preferred qn value; cookies is
// the raw cookie header used to unlock higher qualities; streamIndex selects
// among multiple offered stream variants (0 = first).
func NewClient(cookies string, quality, streamIndex int) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: requestTimeout},
		baseURL:     defaultBaseURL,
		cookies:     cookies,
		quality:     quality,
		streamIndex: streamIndex,
	}
}

type playInfoResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		LiveStatus  int `json:"live_status"`
		PlayurlInfo *struct {
			Playurl *struct {
				Stream []struct {
					Format []struct {
						Codec []struct {
							CurrentQn int    `json:"current_qn"`
							BaseURL   string `json:"base_url"`
							URLInfo   []struct {
								Host  string `json:"host"`
								Extra string `json:"extra"`
							} `json:"url_info"`
						} `json:"codec"`
					} `json:"format"`
				} `json:"stream"`
				GQnDesc []struct {
					Qn   int    `json:"qn"`
					Desc string `json:"desc"`
				} `json:"g_qn_desc"`
			} `json:"playurl"`
		} `json:"playurl_info"`
	} `json:"data"`
}

type roomInfoResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		RoomInfo struct {
			Title      string `json:"title"`
			LiveStatus int    `json:"live_status"`
		} `json:"room_info"`
		AnchorInfo struct {
			BaseInfo struct {
				Uname string `json:"uname"`
			} `json:"base_info"`
		} `json:"anchor_info"`
	} `json:"data"`
}

// Resolve returns a playable stream endpoint for the room, ErrNotLive when
// the room is offline, or a descriptive error for API failures and
// malformed payloads.
func (c *Client) Resolve(ctx context.Context, roomID string) (*Stream, error) {
	params := url.Values{
		"room_id":    {roomID},
		"no_playurl": {"0"},
		"mask":       {"1"},
		"qn":         {strconv.Itoa(c.quality)},
		"platform":   {"web"},
		"protocol":   {"0,1"},
		"format":     {"0,1,2"},
		"codec":      {"0,1,2"},
		"dolby":      {"5"},
		"panorama":   {"1"},
		"hdr_type":   {"0,1"},
	}

	var resp playInfoResponse
	if err := c.getJSON(ctx, playInfoPath, params, roomID, &resp); err != nil {
		return nil, err
	}

	if resp.Code != 0 {
		return nil, errors.Errorf("room %s: api error %d: %s", roomID, resp.Code, resp.Message)
	}
	if resp.Data.LiveStatus != 1 {
		return nil, errors.Wrapf(ErrNotLive, "room %s (status %d)", roomID, resp.Data.LiveStatus)
	}

	info := resp.Data.PlayurlInfo
	if info == nil || info.Playurl == nil || len(info.Playurl.Stream) == 0 {
		return nil, errors.Errorf("room %s: no play info in response", roomID)
	}

	// Multiple stream variants may be offered; the index is an explicit
	// configuration choice, clamped to what is actually available.
	idx := c.streamIndex
	if idx < 0 || idx >= len(info.Playurl.Stream) {
		idx = 0
	}
	stream := info.Playurl.Stream[idx]
	if len(stream.Format) == 0 || len(stream.Format[0].Codec) == 0 {
		return nil, errors.Errorf("room %s: no codec info in response", roomID)
	}
	codec := stream.Format[0].Codec[0]
	if len(codec.URLInfo) == 0 {
		return nil, errors.Errorf("room %s: no url info in response", roomID)
	}

	quality := strconv.Itoa(codec.CurrentQn)
	for _, q := range info.Playurl.GQnDesc {
		if q.Qn == codec.CurrentQn {
			quality = q.Desc
			break
		}
	}

	return &Stream{
		URL:     codec.URLInfo[0].Host + codec.BaseURL + codec.URLInfo[0].Extra,
		Quality: quality,
	}, nil
}

// RoomInfo fetches the room's title, anchor name and live status.
func (c *Client) RoomInfo(ctx context.Context, roomID string) (*RoomInfo, error) {
	params := url.Values{"room_id": {roomID}}

	var resp roomInfoResponse
	if err := c.getJSON(ctx, roomInfoPath, params, roomID, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 0 {
		return nil, errors.Errorf("room %s: api error %d: %s", roomID, resp.Code, resp.Message)
	}

	return &RoomInfo{
		Title:      resp.Data.RoomInfo.Title,
		Anchor:     resp.Data.AnchorInfo.BaseInfo.Uname,
		LiveStatus: resp.Data.RoomInfo.LiveStatus,
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, roomID string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return errors.Wrapf(err, "room %s: build request", roomID)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", "https://live.bilibili.com/"+roomID)
	req.Header.Set("Origin", "https://live.bilibili.com")
	if c.cookies != "" {
		req.Header.Set("Cookie", c.cookies)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "room %s: request failed", roomID)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("room %s: unexpected status %s", roomID, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "room %s: decode response", roomID)
	}
	return nil
}

// QualityName returns the conventional label for a qn value, used in logs
// and configuration hints.
func QualityName(qn int) string {
	switch qn {
	case 30000:
		return "杜比"
	case 25000:
		return "原画真彩/4K"
	case 20000:
		return "4K"
	case 10000:
		return "原画/1080P高码率"
	case 400:
		return "蓝光/1080P"
	case 250:
		return "超清/720P"
	case 150:
		return "高清"
	case 80:
		return "流畅"
	default:
		return strconv.Itoa(qn)
	}
}
