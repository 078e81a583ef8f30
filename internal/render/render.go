// Package render turns a chunk of rows into downloadable file bytes. The
// export lifecycle only depends on the Renderer interface; it has no
// knowledge of chunking, storage, or record state.
package render

import "context"

// Renderer produces one file from a header row and a chunk of data rows.
type Renderer interface {
	Render(ctx context.Context, columns []string, rows [][]string) ([]byte, error)

	// ContentType is the MIME type of rendered output.
	ContentType() string

	// Ext is the filename extension without the dot.
	Ext() string
}

// ByFormat builds the renderer catalogue keyed by template format name.
func ByFormat() map[string]Renderer {
	return map[string]Renderer{
		"csv":  &CSVRenderer{},
		"xlsx": &XLSXRenderer{},
	}
}
