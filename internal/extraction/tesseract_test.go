package extraction

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rsamf/mink/internal/datastore"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t1280\t720\t-1\t\n" +
	"4\t1\t1\t1\t1\t0\t100\t50\t300\t40\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t100\t50\t120\t40\t96.5\tQuarterly\n" +
	"5\t1\t1\t1\t1\t2\t230\t52\t170\t38\t91.5\tRoadmap\n" +
	"5\t1\t2\t1\t1\t1\t80\t400\t60\t20\t30.0\tdraft\n" +
	"5\t1\t2\t1\t1\t2\t150\t400\t40\t20\t88.0\t \n"

func TestParseTesseractTSV(t *testing.T) {
	t.Parallel()

	regions, err := parseTesseractTSV([]byte(sampleTSV), 0)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, "Quarterly Roadmap", regions[0].Text)
	assert.Equal(t, datastore.BBox{100, 50, 400, 90}, regions[0].BBox)
	assert.InDelta(t, 0.94, regions[0].Confidence, 1e-9)

	assert.Equal(t, "draft", regions[1].Text)
	assert.InDelta(t, 0.30, regions[1].Confidence, 1e-9)

	for _, r := range regions {
		assert.True(t, r.BBox.Valid())
	}
}

func TestParseTesseractTSV_MinConfidence(t *testing.T) {
	t.Parallel()

	regions, err := parseTesseractTSV([]byte(sampleTSV), 0.5)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "Quarterly Roadmap", regions[0].Text)
}

func TestParseTesseractTSV_Empty(t *testing.T) {
	t.Parallel()

	regions, err := parseTesseractTSV(nil, 0)
	require.NoError(t, err)
	assert.Empty(t, regions)
}

func TestTesseractLangArg(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "eng", tesseractLangArg(nil))
	assert.Equal(t, "eng+deu", tesseractLangArg([]string{"en", "DE"}))
	assert.Equal(t, "eng+chi_sim", tesseractLangArg([]string{"en", "ch_sim"}))
	assert.Equal(t, "hin", tesseractLangArg([]string{"hin"}))
	assert.Equal(t, "eng", tesseractLangArg([]string{" "}))
}

func TestTesseractRecognizer_Recognize(t *testing.T) {
	t.Parallel()

	tools := &fakeTools{tsv: sampleTSV}
	rec := NewTesseractRecognizer("tesseract", []string{"en"}, 0, tools)

	regions, err := rec.Recognize(context.Background(), "/tmp/frame.png")
	require.NoError(t, err)
	assert.Len(t, regions, 2)

	calls := tools.callsTo("tesseract")
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"tesseract", "/tmp/frame.png", "stdout", "-l", "eng", "tsv"}, calls[0])
	assert.Equal(t, "tesseract", rec.Name())
}
