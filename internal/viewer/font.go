// Package viewer renders a snake agent playing in an Ebitengine window.
package viewer

import (
	"bytes"
	"log"

	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

// fontStyle selects one of the viewer's text styles.
type fontStyle int

const (
	styleHUD fontStyle = iota
	styleTitle
)

// styles maps each style to its font source and unscaled size. Sources are
// nil when the embedded font failed to parse; such text is skipped.
var styles = [...]struct {
	source *text.GoTextFaceSource
	size   float64
}{
	styleHUD:   {loadSource("regular", goregular.TTF), 14},
	styleTitle: {loadSource("bold", gobold.TTF), 18},
}

func loadSource(name string, ttf []byte) *text.GoTextFaceSource {
	src, err := text.NewGoTextFaceSource(bytes.NewReader(ttf))
	if err != nil {
		log.Printf("warn: failed to load %s font: %v", name, err)
		return nil
	}
	return src
}

// scaledFace returns the face for style at the given HiDPI scale, or nil if
// its font failed to load.
func scaledFace(style fontStyle, scale float64) *text.GoTextFace {
	st := styles[style]
	if st.source == nil {
		return nil
	}
	return &text.GoTextFace{Source: st.source, Size: st.size * scale}
}
