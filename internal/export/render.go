// Package export renders a saved story as a downloadable document.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"
	"time"
)

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"

	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	footerDate = "Jan 2, 2006"
)

// ErrInvalid is wrapped by every input validation failure.
var ErrInvalid = errors.New("export: invalid input")

// Document is a rendered export. For pdf, Content holds the HTML page the
// client converts to PDF and HTML repeats it.
type Document struct {
	Content  []byte
	Filename string
	MimeType string
	HTML     string
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9]`)

// ParseFormat maps a requested format to a Format; empty means pdf.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPDF, nil
	case FormatPDF, FormatDOCX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", ErrInvalid, s)
	}
}

// Render builds the document for title and content. now stamps the pdf
// footer.
func Render(title, content string, format Format, now time.Time) (Document, error) {
	if strings.TrimSpace(title) == "" || strings.TrimSpace(content) == "" {
		return Document{}, fmt.Errorf("%w: title and content are required", ErrInvalid)
	}
	switch format {
	case FormatPDF:
		page, err := renderHTML(title, content, now)
		if err != nil {
			return Document{}, err
		}
		return Document{
			Content:  []byte(page),
			Filename: filename(title, "pdf"),
			MimeType: mimePDF,
			HTML:     page,
		}, nil
	case FormatDOCX:
		pkg, err := renderDOCX(title, content)
		if err != nil {
			return Document{}, err
		}
		return Document{
			Content:  pkg,
			Filename: filename(title, "docx"),
			MimeType: mimeDOCX,
		}, nil
	default:
		return Document{}, fmt.Errorf("%w: unknown format %q", ErrInvalid, format)
	}
}

func filename(title, ext string) string {
	return unsafeFilenameChars.ReplaceAllString(title, "_") + "." + ext
}

func paragraphs(content string) []string {
	return strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <style>
      body {
        font-family: 'Georgia', serif;
        line-height: 1.6;
        max-width: 800px;
        margin: 40px auto;
        padding: 20px;
        color: #333;
      }
      h1 {
        color: #3aafa9;
        border-bottom: 2px solid #def2f1;
        padding-bottom: 10px;
        margin-bottom: 30px;
      }
      p {
        margin-bottom: 15px;
        text-align: justify;
      }
      .footer {
        margin-top: 50px;
        padding-top: 20px;
        border-top: 1px solid #def2f1;
        text-align: center;
        color: #999;
        font-size: 12px;
      }
    </style>
  </head>
  <body>
    <h1>{{.Title}}</h1>
    <div>{{range .Paragraphs}}<p>{{.}}</p>{{end}}</div>
    <div class="footer">
      <p>Generated from Memory Keeper • {{.Date}}</p>
    </div>
  </body>
</html>
`))

func renderHTML(title, content string, now time.Time) (string, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title      string
		Paragraphs []string
		Date       string
	}{
		Title:      title,
		Paragraphs: paragraphs(content),
		Date:       now.Format(footerDate),
	})
	if err != nil {
		return "", fmt.Errorf("export: render html: %w", err)
	}
	return buf.String(), nil
}

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="xml" ContentType="application/xml"/>
  <Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`

const relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

func renderDOCX(title, content string) ([]byte, error) {
	var doc bytes.Buffer
	doc.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	doc.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	if err := writeParagraph(&doc, title, true); err != nil {
		return nil, err
	}
	for _, p := range paragraphs(content) {
		if err := writeParagraph(&doc, p, false); err != nil {
			return nil, err
		}
	}
	doc.WriteString(`</w:body></w:document>`)

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	parts := []struct {
		name string
		body []byte
	}{
		{name: "[Content_Types].xml", body: []byte(contentTypesXML)},
		{name: "_rels/.rels", body: []byte(relsXML)},
		{name: "word/document.xml", body: doc.Bytes()},
	}
	for _, p := range parts {
		w, err := zw.Create(p.name)
		if err != nil {
			return nil, fmt.Errorf("export: create %s: %w", p.name, err)
		}
		if _, err := w.Write(p.body); err != nil {
			return nil, fmt.Errorf("export: write %s: %w", p.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("export: close docx: %w", err)
	}
	return out.Bytes(), nil
}

func writeParagraph(buf *bytes.Buffer, text string, bold bool) error {
	buf.WriteString(`<w:p><w:r>`)
	if bold {
		buf.WriteString(`<w:rPr><w:b/></w:rPr>`)
	}
	buf.WriteString(`<w:t xml:space="preserve">`)
	if err := xml.EscapeText(buf, []byte(text)); err != nil {
		return fmt.Errorf("export: escape docx text: %w", err)
	}
	buf.WriteString(`</w:t></w:r></w:p>`)
	return nil
}
