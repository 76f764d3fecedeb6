// Package sharecard renders the PNG card players share after a match: the
// final board, a headline and each player's rating change with a tier badge.
package sharecard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strconv"
	"strings"
	"time"

	"github.com/park285/sudoku-duo/internal/boardcodec"
	"github.com/park285/sudoku-duo/internal/domain"
	"github.com/park285/sudoku-duo/internal/rating"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var ErrNoMatch = errors.New("match is nil")

type Options struct {
	Headline string
	// Footer is printed under the player panels, usually the invite or web URL.
	Footer string
}

type Renderer interface {
	RenderPNG(ctx context.Context, m *domain.Match, opts Options) ([]byte, error)
}

type cardRenderer struct{}

func NewRenderer() Renderer { return &cardRenderer{} }

const (
	cellSize     = 44
	boardSize    = cellSize * 9
	sideMargin   = 28
	topMargin    = 84
	panelHeight  = 56
	panelGap     = 10
	footerHeight = 34
	badgeSize    = 40
	panelRadius  = 10
	textScale    = 2
	digitScale   = 3
)

var (
	backgroundColor = color.RGBA{R: 22, G: 24, B: 36, A: 255}
	cellColor       = color.RGBA{R: 250, G: 248, B: 240, A: 255}
	boxShadeColor   = color.RGBA{R: 236, G: 232, B: 220, A: 255}
	thinLineColor   = color.RGBA{R: 190, G: 186, B: 176, A: 255}
	thickLineColor  = color.RGBA{R: 40, G: 42, B: 56, A: 255}
	givenDigitColor = color.NRGBA{R: 30, G: 32, B: 44, A: 255}
	filledColor     = color.NRGBA{R: 40, G: 110, B: 220, A: 255}
	wrongColor      = color.NRGBA{R: 210, G: 52, B: 52, A: 255}
	panelColor      = color.NRGBA{R: 34, G: 37, B: 54, A: 250}
	winnerPanel     = color.NRGBA{R: 44, G: 74, B: 58, A: 250}
	textPrimary     = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	textSecondary   = color.NRGBA{R: 170, G: 176, B: 204, A: 255}
	gainColor       = color.NRGBA{R: 96, G: 214, B: 140, A: 255}
	lossColor       = color.NRGBA{R: 240, G: 110, B: 110, A: 255}
)

func (r *cardRenderer) RenderPNG(ctx context.Context, m *domain.Match, opts Options) ([]byte, error) {
	if m == nil {
		return nil, ErrNoMatch
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	totalWidth := boardSize + sideMargin*2
	totalHeight := topMargin + boardSize + panelGap + 2*(panelHeight+panelGap) + footerHeight
	img := image.NewRGBA(image.Rect(0, 0, totalWidth, totalHeight))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	headline := strings.TrimSpace(opts.Headline)
	if headline == "" {
		headline = "Sudoku Duo"
	}
	drawText(img, truncateToWidth(headline, (totalWidth-2*sideMargin)/textScale), image.Pt(sideMargin, 20), textScale, textPrimary)
	drawText(img, subtitle(m), image.Pt(sideMargin, 52), 1, textSecondary)

	origin := image.Pt(sideMargin, topMargin)
	drawBoard(img, m, origin)

	y := topMargin + boardSize + panelGap
	for i, p := range m.Players {
		rect := image.Rect(sideMargin, y, totalWidth-sideMargin, y+panelHeight)
		if err := drawPlayerPanel(img, rect, p, m.RatingChanges[p.ID], m.Winner == i+1); err != nil {
			return nil, err
		}
		y += panelHeight + panelGap
	}
	if footer := strings.TrimSpace(opts.Footer); footer != "" {
		drawText(img, truncateToWidth(footer, totalWidth-2*sideMargin), image.Pt(sideMargin, y+8), 1, textSecondary)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func subtitle(m *domain.Match) string {
	parts := []string{strings.ToUpper(string(m.Difficulty)), string(m.Type)}
	if !m.StartedAt.IsZero() && !m.CompletedAt.IsZero() {
		parts = append(parts, m.CompletedAt.Sub(m.StartedAt).Round(time.Second).String())
	}
	return strings.Join(parts, " / ")
}

func drawBoard(img *image.RGBA, m *domain.Match, origin image.Point) {
	initial := boardcodec.ToGrid(m.Initial)
	solution := boardcodec.ToGrid(m.Solution)
	board := boardcodec.ToGrid(m.State.Board)

	for row := 0; row < 9; row++ {
		for col := 0; col < 9; col++ {
			rect := cellRect(row, col, origin)
			fill := cellColor
			if ((row/3)+(col/3))%2 == 1 {
				fill = boxShadeColor
			}
			imagedraw.Draw(img, rect, image.NewUniform(fill), image.Point{}, imagedraw.Src)

			v := board[row][col]
			if v == 0 {
				continue
			}
			clr := filledColor
			switch {
			case initial[row][col] != 0:
				clr = givenDigitColor
			case solution[row][col] != 0 && solution[row][col] != v:
				clr = wrongColor
			}
			drawCentered(img, strconv.Itoa(v), rect, digitScale, clr)
		}
	}

	for i := 0; i <= 9; i++ {
		width, clr := 1, thinLineColor
		if i%3 == 0 {
			width, clr = 3, thickLineColor
		}
		off := i*cellSize - width/2
		vertical := image.Rect(origin.X+off, origin.Y, origin.X+off+width, origin.Y+boardSize)
		horizontal := image.Rect(origin.X, origin.Y+off, origin.X+boardSize, origin.Y+off+width)
		imagedraw.Draw(img, vertical, image.NewUniform(clr), image.Point{}, imagedraw.Src)
		imagedraw.Draw(img, horizontal, image.NewUniform(clr), image.Point{}, imagedraw.Src)
	}
}

func cellRect(row, col int, origin image.Point) image.Rectangle {
	x := origin.X + col*cellSize
	y := origin.Y + row*cellSize
	return image.Rect(x, y, x+cellSize, y+cellSize)
}

func drawPlayerPanel(img *image.RGBA, rect image.Rectangle, p domain.Player, delta int, won bool) error {
	bg := panelColor
	if won {
		bg = winnerPanel
	}
	drawRoundedPanel(img, rect, panelRadius, bg)

	after := rating.Clamp(p.Rating + delta)
	tier := rating.TierOf(after)
	badge, err := renderBadge(tier, badgeSize)
	if err != nil {
		return err
	}
	by := rect.Min.Y + (rect.Dy()-badgeSize)/2
	badgeRect := image.Rect(rect.Min.X+8, by, rect.Min.X+8+badgeSize, by+badgeSize)
	imagedraw.Draw(img, badgeRect, badge, image.Point{}, imagedraw.Over)

	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = "Waiting..."
	}
	if p.IsAI {
		name += " (AI)"
	}
	textX := badgeRect.Max.X + 12
	drawText(img, truncateToWidth(name, (rect.Max.X-textX-90)/textScale), image.Pt(textX, rect.Min.Y+8), textScale, textPrimary)
	drawText(img, strings.ToUpper(tier.String()), image.Pt(textX, rect.Min.Y+38), 1, textSecondary)

	score := strconv.Itoa(after)
	scoreClr := textPrimary
	if delta > 0 {
		score += " +" + strconv.Itoa(delta)
		scoreClr = gainColor
	} else if delta < 0 {
		score += " " + strconv.Itoa(delta)
		scoreClr = lossColor
	}
	w := measure(score) * textScale
	drawText(img, score, image.Pt(rect.Max.X-12-w, rect.Min.Y+16), textScale, scoreClr)
	return nil
}

var face = basicfont.Face7x13

func measure(text string) int {
	d := font.Drawer{Face: face}
	return d.MeasureString(text).Ceil()
}

// drawText rasterises text with the bitmap face at 1x and scales it onto dst
// so the top-left corner lands on at.
func drawText(dst *image.RGBA, text string, at image.Point, scale int, clr color.Color) {
	text = strings.TrimSpace(text)
	if text == "" || scale <= 0 {
		return
	}
	metrics := face.Metrics()
	w := measure(text)
	h := metrics.Height.Ceil()
	src := image.NewRGBA(image.Rect(0, 0, w, h))
	d := font.Drawer{
		Dst:  src,
		Src:  image.NewUniform(clr),
		Face: face,
		Dot:  fixed.P(0, metrics.Ascent.Ceil()),
	}
	d.DrawString(text)
	target := image.Rect(at.X, at.Y, at.X+w*scale, at.Y+h*scale)
	draw.NearestNeighbor.Scale(dst, target, src, src.Bounds(), draw.Over, nil)
}

func drawCentered(dst *image.RGBA, text string, rect image.Rectangle, scale int, clr color.Color) {
	w := measure(text) * scale
	h := face.Metrics().Height.Ceil() * scale
	at := image.Pt(rect.Min.X+(rect.Dx()-w)/2, rect.Min.Y+(rect.Dy()-h)/2)
	drawText(dst, text, at, scale, clr)
}

func truncateToWidth(text string, maxWidth int) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || maxWidth <= 0 || measure(trimmed) <= maxWidth {
		return trimmed
	}
	const ellipsis = "..."
	if measure(ellipsis) > maxWidth {
		return ""
	}
	runes := []rune(trimmed)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + ellipsis
		if measure(candidate) <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

func drawRoundedPanel(img *image.RGBA, rect image.Rectangle, radius int, clr color.Color) {
	if img == nil || rect.Empty() {
		return
	}
	maxRadius := rect.Dx() / 2
	if r := rect.Dy() / 2; r < maxRadius {
		maxRadius = r
	}
	if radius > maxRadius {
		radius = maxRadius
	}
	fill := image.NewUniform(clr)
	if radius <= 0 {
		imagedraw.Draw(img, rect, fill, image.Point{}, imagedraw.Over)
		return
	}

	core := image.Rect(rect.Min.X+radius, rect.Min.Y, rect.Max.X-radius, rect.Max.Y)
	imagedraw.Draw(img, core, fill, image.Point{}, imagedraw.Over)
	left := image.Rect(rect.Min.X, rect.Min.Y+radius, rect.Min.X+radius, rect.Max.Y-radius)
	imagedraw.Draw(img, left, fill, image.Point{}, imagedraw.Over)
	right := image.Rect(rect.Max.X-radius, rect.Min.Y+radius, rect.Max.X, rect.Max.Y-radius)
	imagedraw.Draw(img, right, fill, image.Point{}, imagedraw.Over)

	corners := []image.Point{
		{rect.Min.X + radius, rect.Min.Y + radius},
		{rect.Max.X - radius - 1, rect.Min.Y + radius},
		{rect.Min.X + radius, rect.Max.Y - radius - 1},
		{rect.Max.X - radius - 1, rect.Max.Y - radius - 1},
	}
	for _, center := range corners {
		drawQuarterDisc(img, center, radius, rect, clr)
	}
}

// drawQuarterDisc fills the part of a disc that lies outside the panel's
// already painted cross, clipped to the panel.
func drawQuarterDisc(img *image.RGBA, center image.Point, radius int, clip image.Rectangle, clr color.Color) {
	r2 := radius * radius
	for y := -radius; y <= radius; y++ {
		for x := -radius; x <= radius; x++ {
			if x*x+y*y > r2 {
				continue
			}
			p := image.Pt(center.X+x, center.Y+y)
			if !p.In(clip) {
				continue
			}
			inCore := p.X >= clip.Min.X+radius && p.X < clip.Max.X-radius
			inSide := p.Y >= clip.Min.Y+radius && p.Y < clip.Max.Y-radius
			if inCore || inSide {
				continue
			}
			blendPixel(img, p.X, p.Y, clr)
		}
	}
}

func blendPixel(img *image.RGBA, x, y int, clr color.Color) {
	if !(image.Point{X: x, Y: y}).In(img.Bounds()) {
		return
	}
	sr, sg, sb, sa := clr.RGBA()
	if sa == 0 {
		return
	}
	dst := img.RGBAAt(x, y)
	inv := 0xffff - sa
	img.SetRGBA(x, y, color.RGBA{
		R: uint8((sr + uint32(dst.R)*0x101*inv/0xffff) >> 8),
		G: uint8((sg + uint32(dst.G)*0x101*inv/0xffff) >> 8),
		B: uint8((sb + uint32(dst.B)*0x101*inv/0xffff) >> 8),
		A: uint8((sa + uint32(dst.A)*0x101*inv/0xffff) >> 8),
	})
}
