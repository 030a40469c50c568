package extraction

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/rsamf/mink/internal/errors"
)

// tesseractLangs maps ISO 639-1 codes, as used in the ocr.lang setting, to
// tesseract traineddata names. Unlisted values are passed through.
var tesseractLangs = map[string]string{
	"en":     "eng",
	"de":     "deu",
	"fr":     "fra",
	"es":     "spa",
	"it":     "ita",
	"pt":     "por",
	"nl":     "nld",
	"fi":     "fin",
	"sv":     "swe",
	"pl":     "pol",
	"ru":     "rus",
	"ja":     "jpn",
	"ko":     "kor",
	"zh":     "chi_sim",
	"ch_sim": "chi_sim",
	"ch_tra": "chi_tra",
}

func tesseractLangArg(langs []string) string {
	if len(langs) == 0 {
		return "eng"
	}
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" {
			continue
		}
		if mapped, ok := tesseractLangs[l]; ok {
			l = mapped
		}
		out = append(out, l)
	}
	if len(out) == 0 {
		return "eng"
	}
	return strings.Join(out, "+")
}

// TesseractRecognizer runs the tesseract CLI on each frame.
type TesseractRecognizer struct {
	path          string
	langs         string
	minConfidence float64
	exec          Executor
}

// NewTesseractRecognizer creates a recognizer. Words whose confidence is
// below minConfidence (0..1) are dropped.
func NewTesseractRecognizer(path string, langs []string, minConfidence float64, exec Executor) *TesseractRecognizer {
	if path == "" {
		path = "tesseract"
	}
	if exec == nil {
		exec = NewExecutor()
	}
	return &TesseractRecognizer{
		path:          path,
		langs:         tesseractLangArg(langs),
		minConfidence: minConfidence,
		exec:          exec,
	}
}

// Name returns "tesseract".
func (t *TesseractRecognizer) Name() string { return "tesseract" }

// Recognize returns one region per text line.
func (t *TesseractRecognizer) Recognize(ctx context.Context, framePath string) ([]Region, error) {
	stdout, _, err := t.exec.Run(ctx, t.path, framePath, "stdout", "-l", t.langs, "tsv")
	if err != nil {
		return nil, err
	}
	regions, err := parseTesseractTSV(stdout, t.minConfidence)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryOCR).
			Context("frame", framePath).
			Build()
	}
	return regions, nil
}

type tsvLine struct {
	words          []string
	confSum        float64
	x1, y1, x2, y2 int
}

// parseTesseractTSV groups word rows (level 5) into lines keyed by
// page/block/paragraph/line and produces one region per line.
func parseTesseractTSV(data []byte, minConfidence float64) ([]Region, error) {
	const (
		colLevel = iota
		colPage
		colBlock
		colPar
		colLine
		colWord
		colLeft
		colTop
		colWidth
		colHeight
		colConf
		colText
		numCols
	)

	lines := map[string]*tsvLine{}
	var order []string

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	header := true
	for sc.Scan() {
		if header {
			header = false
			if strings.HasPrefix(sc.Text(), "level") {
				continue
			}
		}
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < numCols || cols[colLevel] != "5" {
			continue
		}
		text := strings.TrimSpace(strings.Join(cols[colText:], "\t"))
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(cols[colConf], 64)
		if err != nil || conf < 0 {
			continue
		}
		conf /= 100
		if conf < minConfidence {
			continue
		}

		nums := make([]int, 4)
		for i, c := range []int{colLeft, colTop, colWidth, colHeight} {
			n, err := strconv.Atoi(cols[c])
			if err != nil {
				return nil, errors.Newf("bad geometry %q in tesseract output", cols[c]).Build()
			}
			nums[i] = n
		}
		left, top, width, height := nums[0], nums[1], nums[2], nums[3]

		key := strings.Join(cols[colPage:colWord], "/")
		ln, ok := lines[key]
		if !ok {
			ln = &tsvLine{x1: left, y1: top, x2: left + width, y2: top + height}
			lines[key] = ln
			order = append(order, key)
		}
		ln.words = append(ln.words, text)
		ln.confSum += conf
		ln.x1 = min(ln.x1, left)
		ln.y1 = min(ln.y1, top)
		ln.x2 = max(ln.x2, left+width)
		ln.y2 = max(ln.y2, top+height)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	regions := make([]Region, 0, len(order))
	for _, key := range order {
		ln := lines[key]
		box, conf := NormalizeBBox([]int{ln.x1, ln.y1, ln.x2, ln.y2}, ln.confSum/float64(len(ln.words)))
		regions = append(regions, Region{
			Text:       strings.Join(ln.words, " "),
			BBox:       box,
			Confidence: conf,
		})
	}
	return regions, nil
}
