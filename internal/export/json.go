package export

import (
	"encoding/json"
	"io"
)

// EncodeJSON writes the full bundle pretty-printed. Non-ASCII text and HTML
// characters are written as-is.
func EncodeJSON(w io.Writer, b *Bundle) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(b)
}
