package export

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var stamp = time.Date(2025, 6, 1, 15, 4, 5, 0, time.UTC)

func TestRender_PDF(t *testing.T) {
	doc, err := Render("Grandma's Kitchen", "Line one\nLine two", FormatPDF, stamp)
	require.NoError(t, err)
	require.Equal(t, "Grandma_s_Kitchen.pdf", doc.Filename)
	require.Equal(t, "application/pdf", doc.MimeType)
	require.Equal(t, doc.HTML, string(doc.Content))
	require.Contains(t, doc.HTML, "font-family: 'Georgia', serif;")
	require.Contains(t, doc.HTML, "<h1>Grandma&#39;s Kitchen</h1>")
	require.Contains(t, doc.HTML, "<p>Line one</p><p>Line two</p>")
	require.Contains(t, doc.HTML, "Generated from Memory Keeper • Jun 1, 2025")
}

func TestRender_EscapesMarkup(t *testing.T) {
	doc, err := Render("<b>x</b>", "<script>alert(1)</script>", FormatPDF, stamp)
	require.NoError(t, err)
	require.NotContains(t, doc.HTML, "<script>")
	require.Contains(t, doc.HTML, "&lt;script&gt;")
	require.Equal(t, "_b_x__b_.pdf", doc.Filename)
}

func TestRender_DOCX(t *testing.T) {
	doc, err := Render("Summer 1962", "We met <there>\nAnd danced & laughed", FormatDOCX, stamp)
	require.NoError(t, err)
	require.Equal(t, "Summer_1962.docx", doc.Filename)
	require.Equal(t, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", doc.MimeType)
	require.Empty(t, doc.HTML)

	zr, err := zip.NewReader(bytes.NewReader(doc.Content), int64(len(doc.Content)))
	require.NoError(t, err)

	files := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		require.NoError(t, rc.Close())
		files[f.Name] = string(body)
	}
	require.Contains(t, files, "[Content_Types].xml")
	require.Contains(t, files, "_rels/.rels")
	body := files["word/document.xml"]
	require.Contains(t, body, ">Summer 1962</w:t>")
	require.Contains(t, body, "We met &lt;there&gt;")
	require.Contains(t, body, "And danced &amp; laughed")
	require.Equal(t, 3, strings.Count(body, "<w:p>"))
}

func TestRender_Validation(t *testing.T) {
	_, err := Render("", "content", FormatPDF, stamp)
	require.ErrorIs(t, err, ErrInvalid)
	_, err = Render("title", "  ", FormatDOCX, stamp)
	require.ErrorIs(t, err, ErrInvalid)
	_, err = Render("title", "content", Format("rtf"), stamp)
	require.ErrorIs(t, err, ErrInvalid)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatPDF},
		{in: "PDF", want: FormatPDF},
		{in: " docx ", want: FormatDOCX},
		{in: "odt", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrInvalid)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}
