// infrastructure/media_resolvers.go
package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vitovidale/autosplit-service/domain"
)

var (
	_ domain.LinkResolver = (*TikwmResolver)(nil)
	_ domain.LinkResolver = (*YtDlpResolver)(nil)
)

// TikwmResolver asks the tikwm API for a TikTok video's playable URL.
type TikwmResolver struct {
	BaseURL string
	Client  *http.Client
}

func NewTikwmResolver(baseURL string, timeout time.Duration) *TikwmResolver {
	return &TikwmResolver{BaseURL: baseURL, Client: &http.Client{Timeout: timeout}}
}

type tikwmResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *struct {
		Play  string `json:"play"`
		Title string `json:"title"`
	} `json:"data"`
}

func (r *TikwmResolver) Resolve(ctx context.Context, link string) (domain.ResolvedMedia, error) {
	form := url.Values{
		"url":    {link},
		"count":  {"12"},
		"cursor": {"0"},
		"web":    {"1"},
		"hd":     {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.ResolvedMedia{}, fmt.Errorf("build tikwm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return domain.ResolvedMedia{}, fmt.Errorf("%w: tikwm: %w", domain.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.ResolvedMedia{}, fmt.Errorf("%w: tikwm returned status %d", domain.ErrDownloadFailed, resp.StatusCode)
	}

	var body tikwmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.ResolvedMedia{}, fmt.Errorf("%w: decode tikwm response: %w", domain.ErrDownloadFailed, err)
	}
	if body.Data == nil || body.Data.Play == "" {
		return domain.ResolvedMedia{}, fmt.Errorf("%w: tikwm has no playable video for %s (%s)", domain.ErrDownloadFailed, link, body.Msg)
	}

	play, err := r.absolute(body.Data.Play)
	if err != nil {
		return domain.ResolvedMedia{}, err
	}
	return domain.ResolvedMedia{MediaURL: play, Caption: body.Data.Title}, nil
}

// absolute resolves the site-relative play paths tikwm returns against the
// API host.
func (r *TikwmResolver) absolute(play string) (string, error) {
	base, err := url.Parse(r.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse tikwm base url: %w", err)
	}
	ref, err := url.Parse(play)
	if err != nil {
		return "", fmt.Errorf("%w: bad play url %q", domain.ErrDownloadFailed, play)
	}
	return base.ResolveReference(ref).String(), nil
}

// YtDlpResolver shells out to yt-dlp for a direct media URL.
type YtDlpResolver struct {
	Path string
	run  commandRunner
}

func NewYtDlpResolver(path string) *YtDlpResolver {
	return &YtDlpResolver{Path: path, run: execRunner}
}

func (r *YtDlpResolver) Resolve(ctx context.Context, link string) (domain.ResolvedMedia, error) {
	out, err := r.run(ctx, r.Path, "-j", "-f", "b", "--no-warnings", "--no-playlist", link)
	if err != nil {
		return domain.ResolvedMedia{}, fmt.Errorf("%w: %w", domain.ErrDownloadFailed, err)
	}
	var info struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(out, &info); err != nil {
		return domain.ResolvedMedia{}, fmt.Errorf("%w: decode yt-dlp output: %w", domain.ErrDownloadFailed, err)
	}
	return domain.ResolvedMedia{MediaURL: info.URL, Caption: info.Title}, nil
}
