package analysis

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lakewatch/internal/model"
	"github.com/sells-group/lakewatch/internal/water"
	ee "github.com/sells-group/lakewatch/pkg/earthengine"
)

// Overlay creates a water-mask map over the most recent months and records
// it as the lake's current overlay.
func (a *Analyzer) Overlay(ctx context.Context, lakeKey string) (*model.Overlay, error) {
	l, ok := a.lakes.Get(lakeKey)
	if !ok {
		return nil, eris.Errorf("analysis: unknown lake %q", lakeKey)
	}
	geometry, err := l.Geometry()
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: geometry for %s", lakeKey)
	}

	lookback := a.cfg.OverlayLookbackMonths
	if lookback <= 0 {
		lookback = 3
	}
	params := a.cfg.Params
	if a.cfg.OverlayCloudMax > 0 {
		params.CloudMax = a.cfg.OverlayCloudMax
	}
	palette := a.cfg.OverlayPalette
	if len(palette) == 0 {
		palette = DefaultConfig().OverlayPalette
	}

	to := a.now().UTC()
	from := to.AddDate(0, -lookback, 0)

	mapID, err := a.client.CreateMap(ctx, water.LatestMask(geometry, to, lookback, params), ee.Visualization{
		Min:     0,
		Max:     1,
		Palette: palette,
	})
	if err != nil {
		return nil, eris.Wrap(err, "analysis: create overlay map")
	}

	overlay := &model.Overlay{
		Lake:    lakeKey,
		MapName: mapID.Name,
		From:    from,
		To:      to,
	}
	if err := a.store.SaveOverlay(ctx, overlay); err != nil {
		return nil, eris.Wrap(err, "analysis: save overlay")
	}

	zap.L().Info("analysis: overlay created",
		zap.String("lake", lakeKey),
		zap.String("map", overlay.MapName),
		zap.Time("from", from),
		zap.Time("to", to),
	)
	return overlay, nil
}

// Boundary returns the lake outline as GeoJSON. Lakes with a local boundary
// encode it directly; asset lakes ask Earth Engine for the feature geometry.
func (a *Analyzer) Boundary(ctx context.Context, lakeKey string) ([]byte, error) {
	l, ok := a.lakes.Get(lakeKey)
	if !ok {
		return nil, eris.Errorf("analysis: unknown lake %q", lakeKey)
	}
	if l.Boundary() != nil {
		return l.BoundaryGeoJSON()
	}

	geometry, err := l.Geometry()
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: geometry for %s", lakeKey)
	}
	raw, err := a.client.Compute(ctx, geometry)
	if err != nil {
		return nil, eris.Wrapf(err, "analysis: fetch boundary for %s", lakeKey)
	}
	return raw, nil
}
