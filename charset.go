package fontdiff

import (
	"slices"

	"github.com/wbrown/fontdiff/imageutil"
)

// Charset is a writing system identified by a sample sentence.
type Charset struct {
	Name   string
	Sample string
}

// Charsets lists the writing systems fonts are checked against, in
// display order.
var Charsets = []Charset{
	{"latin", "The quick brown fox jumps over the lazy dog."},
	{"latin-ext", "ÁÉÍÓÚÀÈÌÒÙÂÊÎÔÛÄËÏÖÜÆŒÇÑßÅØÞÆŁĐØÞßæœçñåøþłđ"},
	{"cyrillic", "Быстрая коричневая лиса прыгает через ленивую собаку."},
	{"greek", "Γρήγορη καφέ αλεπού πηδάει πάνω από το τεμπέλικο σκυλί."},
	{"hebrew", "השועל החום המהיר קופץ מעל לטפשה העצלה."},
	{"arabic", "الثعلب البني السريع يقفز فوق الكلب الكسول."},
	{"devanagari", "तेज भूरी लोमड़ी आलसी कुत्ते पर कूदती है।"},
	{"chinese", "快速的棕色狐狸跳過过懒懶狗。"},
	{"japanese", "速い茶色のキツネは、怠け者の犬を飛び越えます。"},
	{"korean", "빠른 갈색 여우가 게으른 개를 뛰어넘습니다."},
	{"thai", "หมาจิ้งจอกสีน้ำตาลเร็วกระโดดข้ามหมาเกียจคร้าน"},
}

// charsetMinHits is how many distinct sample codepoints a font must draw
// to count as covering a charset. Punctuation alone never qualifies.
const charsetMinHits = 3

// charsetSlack is how many of the reference's charsets a candidate may
// lack before it is rejected.
const charsetSlack = 2

// DetectCharsets returns the names of the charsets the symbol set covers,
// in the order of Charsets.
func DetectCharsets(set SymbolSet) []string {
	var names []string
	for _, cs := range Charsets {
		if SymbolSetFromString(cs.Sample).Intersect(set).Len() > charsetMinHits {
			names = append(names, cs.Name)
		}
	}
	return names
}

// CharsetsCompatible reports whether a candidate covering have is close
// enough to a reference covering want: at most two of the reference's
// charsets may be missing.
func CharsetsCompatible(want, have []string) bool {
	shared := 0
	for _, name := range want {
		if slices.Contains(have, name) {
			shared++
		}
	}
	return shared >= len(want)-charsetSlack
}

// RenderSpecimen draws one line of sample text per charset, each under a
// small caption, in the font at path. Only the named charsets are drawn.
func (r *MatrixRenderer) RenderSpecimen(path string, charsets []string, width int) (*imageutil.RGBAImage, error) {
	handle, err := r.fonts.LoadFont(path, float64(r.layout.FontSize))
	if err != nil {
		return nil, err
	}
	line := r.layout.FontSize + r.layout.TitleHeight/2
	height := r.layout.Padding*2 + line*len(charsets)
	img := imageutil.NewCanvas(width, height, imageutil.White)

	y := r.layout.Padding
	for _, cs := range Charsets {
		if !slices.Contains(charsets, cs.Name) {
			continue
		}
		r.title.DrawText(img.RGBA, r.layout.TitleX, y, cs.Name)
		handle.DrawText(img.RGBA, r.layout.TitleX, y+line-r.layout.FontSize, cs.Sample)
		y += line
	}
	return img, nil
}
