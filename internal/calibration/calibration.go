// Package calibration fetches the display and camera profile and picks a
// usable one when the server cannot provide it.
package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/verte-zerg/landolt/internal/endpoint"
	"github.com/verte-zerg/landolt/internal/model"
)

const (
	profilePath   = "/auth/calibration"
	screenPPIPath = "/api/get-screen-ppi"
	fetchTimeout  = 10 * time.Second
	maxBodyBytes  = 1 << 20
)

// ErrUnavailable means the server returned no usable density.
var ErrUnavailable = errors.New("calibration unavailable")

// Fetcher loads a calibration from somewhere.
type Fetcher interface {
	Fetch(ctx context.Context) (model.Calibration, error)
}

// Cache stores the last good calibration.
type Cache interface {
	SaveCalibration(ctx context.Context, cal model.Calibration) error
	LatestCalibration(ctx context.Context) (model.Calibration, bool, error)
}

// Client reads the calibration endpoints of the screening server.
type Client struct {
	ServerURL  string
	Token      string
	HTTPClient *http.Client
}

type profile struct {
	FocalLength *float64 `json:"focal_length"`
	PixelsPerMM *float64 `json:"pixels_per_mm"`
	ScreenPPI   *float64 `json:"screen_ppi"`
}

// Fetch tries the full profile first and falls back to the screen PPI endpoint.
func (c *Client) Fetch(ctx context.Context) (model.Calibration, error) {
	var p profile
	errProfile := c.get(ctx, profilePath, &p)
	if errProfile == nil {
		if cal, ok := FromProfile(deref(p.FocalLength), deref(p.PixelsPerMM), deref(p.ScreenPPI)); ok {
			return cal, nil
		}
	}

	var ppi profile
	if err := c.get(ctx, screenPPIPath, &ppi); err != nil {
		return model.Calibration{}, fmt.Errorf("%w: %w", ErrUnavailable, errors.Join(errProfile, err))
	}
	cal, ok := FromProfile(deref(p.FocalLength), 0, deref(ppi.ScreenPPI))
	if !ok {
		return model.Calibration{}, fmt.Errorf("%w: server sent no screen density", ErrUnavailable)
	}
	return cal, nil
}

func (c *Client) get(ctx context.Context, path string, v any) error {
	u, err := endpoint.HTTP(c.ServerURL, path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	req.Header.Set("Accept", "application/json")

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %s", path, resp.Status)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// FromProfile builds a server calibration. Pixels per millimeter is derived
// from PPI when missing, and the reverse. It reports false when neither is usable.
func FromProfile(focalLength, pixelsPerMM, screenPPI float64) (model.Calibration, bool) {
	switch {
	case model.PositiveFinite(pixelsPerMM) && !model.PositiveFinite(screenPPI):
		screenPPI = pixelsPerMM * model.MMPerInch
	case !model.PositiveFinite(pixelsPerMM) && model.PositiveFinite(screenPPI):
		pixelsPerMM = screenPPI / model.MMPerInch
	case !model.PositiveFinite(pixelsPerMM) && !model.PositiveFinite(screenPPI):
		return model.Calibration{}, false
	}
	if !model.PositiveFinite(focalLength) {
		focalLength = 0
	}
	return model.Calibration{
		PixelsPerMM: pixelsPerMM,
		ScreenPPI:   screenPPI,
		FocalLength: focalLength,
		Source:      model.SourceServer,
	}, true
}

// Resolve returns the server calibration, then the cached one, then the
// 96 DPI default. A fresh server calibration is written to the cache.
func Resolve(ctx context.Context, f Fetcher, cache Cache, viewingDistanceMM float64, logger *slog.Logger) model.Calibration {
	if logger == nil {
		logger = slog.Default()
	}
	if !model.PositiveFinite(viewingDistanceMM) {
		viewingDistanceMM = model.DefaultViewingDistanceMM
	}
	withDistance := func(cal model.Calibration) model.Calibration {
		cal.ViewingDistanceMM = viewingDistanceMM
		return cal
	}

	if f != nil {
		cal, err := f.Fetch(ctx)
		if err == nil {
			if cache != nil {
				if err := cache.SaveCalibration(ctx, cal); err != nil {
					logger.Error("calibration not cached", "err", err)
				}
			}
			return withDistance(cal)
		}
		logger.Warn("calibration fetch failed", "err", err)
	}
	if cache != nil {
		cal, ok, err := cache.LatestCalibration(ctx)
		switch {
		case err != nil:
			logger.Error("calibration cache read failed", "err", err)
		case ok && model.PositiveFinite(cal.PixelsPerMM):
			cal.Source = model.SourceCache
			return withDistance(cal)
		}
	}
	logger.Info("using default calibration", "ppi", model.DefaultPPI)
	return withDistance(model.DefaultCalibration())
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
