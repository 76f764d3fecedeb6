package sharecard

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/park285/sudoku-duo/internal/rating"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const badgeTemplate = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64" width="64" height="64">
  <path d="M32 3 L58 15 L58 39 L32 61 L6 39 L6 15 Z" style="fill: %s;stroke: #1c1f2e;stroke-width:3"/>
  <path d="M32 13 L48 21 L48 37 L32 51 L16 37 L16 21 Z" style="fill: #ffffff;fill-opacity:0.35"/>
  <circle cx="32" cy="31" r="%d" style="fill: #ffffff"/>
</svg>`

type badgeKey struct {
	tier rating.Tier
	size int
}

var (
	badgeCache   = map[badgeKey]image.Image{}
	badgeCacheMu sync.RWMutex
)

// badgeSVG grows the centre pip with the tier so badges differ beyond colour.
func badgeSVG(t rating.Tier) []byte {
	return []byte(fmt.Sprintf(badgeTemplate, t.Color(), 3+int(t)))
}

func renderBadge(t rating.Tier, size int) (image.Image, error) {
	key := badgeKey{tier: t, size: size}

	badgeCacheMu.RLock()
	if img, ok := badgeCache[key]; ok {
		badgeCacheMu.RUnlock()
		return img, nil
	}
	badgeCacheMu.RUnlock()

	icon, err := oksvg.ReadIconStream(bytes.NewReader(sanitizeSVG(badgeSVG(t))))
	if err != nil {
		return nil, fmt.Errorf("parse %s badge svg: %w", t, err)
	}
	if icon.ViewBox.W <= 0 {
		icon.ViewBox.W = float64(size)
	}
	if icon.ViewBox.H <= 0 {
		icon.ViewBox.H = float64(size)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	badgeCacheMu.Lock()
	badgeCache[key] = img
	badgeCacheMu.Unlock()

	return img, nil
}
