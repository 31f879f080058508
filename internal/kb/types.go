package kb

import (
	"fmt"
	"path"
	"strings"
)

// Fragment is a line-addressed slice of one file's text at one snapshot
// version. Its identity is (Namespace, Path, ChunkIndex); the derived ID is
// used as the vector-store key, so re-ingesting the same snapshot overwrites
// the same records.
type Fragment struct {
	Namespace  string `json:"namespace"`
	Path       string `json:"path"`
	ChunkIndex int    `json:"chunk_index"`
	StartLine  int    `json:"start_line"`
	EndLine    int    `json:"end_line"`
	Text       string `json:"text"`
	IsReadme   bool   `json:"is_readme"`
	IsDoc      bool   `json:"is_doc"`
	Filename   string `json:"filename"`
	Ext        string `json:"ext"`
}

// ID returns the globally unique storage key for the fragment.
func (f Fragment) ID() string {
	return fmt.Sprintf("%s:%s:%d", f.Namespace, f.Path, f.ChunkIndex)
}

// Metadata flattens the fragment into the payload shape stored alongside its
// vector.
func (f Fragment) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"path":        f.Path,
		"chunk_index": f.ChunkIndex,
		"start_line":  f.StartLine,
		"end_line":    f.EndLine,
		"text":        f.Text,
		"is_readme":   f.IsReadme,
		"is_doc":      f.IsDoc,
		"filename":    f.Filename,
		"ext":         f.Ext,
	}
}

// FragmentFromPayload rebuilds a fragment from a vector-store payload. It is
// the single seam where loosely typed index responses are adapted into the
// canonical shape; missing or oddly typed fields degrade to zero values
// rather than failing.
func FragmentFromPayload(namespace string, payload map[string]interface{}) Fragment {
	frag := Fragment{Namespace: namespace}
	frag.Path = payloadString(payload, "path")
	frag.ChunkIndex = payloadInt(payload, "chunk_index")
	frag.StartLine = payloadInt(payload, "start_line")
	frag.EndLine = payloadInt(payload, "end_line")
	frag.Text = payloadString(payload, "text")
	if frag.Text == "" {
		frag.Text = payloadString(payload, "content")
	}
	frag.IsReadme = payloadBool(payload, "is_readme")
	frag.IsDoc = payloadBool(payload, "is_doc")
	frag.Filename = payloadString(payload, "filename")
	if frag.Filename == "" && frag.Path != "" {
		frag.Filename = path.Base(frag.Path)
	}
	frag.Ext = payloadString(payload, "ext")
	if frag.Ext == "" && frag.Filename != "" {
		frag.Ext = strings.ToLower(path.Ext(frag.Filename))
	}
	if frag.StartLine <= 0 {
		frag.StartLine = 1
	}
	if frag.EndLine < frag.StartLine {
		frag.EndLine = frag.StartLine
	}
	return frag
}

func payloadString(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if value, ok := payload[key].(string); ok {
		return value
	}
	return ""
}

func payloadInt(payload map[string]interface{}, key string) int {
	if payload == nil {
		return 0
	}
	switch value := payload[key].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case float32:
		return int(value)
	}
	return 0
}

func payloadBool(payload map[string]interface{}, key string) bool {
	if payload == nil {
		return false
	}
	switch value := payload[key].(type) {
	case bool:
		return value
	case string:
		return strings.EqualFold(value, "true")
	case float64:
		return value != 0
	}
	return false
}
