package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/triage-ai/toolbox/internal/registry"
)

type filenameArgs struct {
	Filename string `json:"filename"`
}

type pathArgs struct {
	Path string `json:"path"`
}

type joinArgs struct {
	Parts []string `json:"parts"`
}

type bytesArgs struct {
	Bytes json.Number `json:"bytes"`
	Units string      `json:"units"`
}

func (a *bytesArgs) Defaults() { a.Units = "auto" }

var byteUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// Files returns the filesystem-path tool group. None of the tools touch
// the filesystem.
func Files() []registry.Tool {
	return []registry.Tool{
		{
			Name:        "get_file_extension",
			Description: "Get the extension of a file name",
			Parameters: registry.Params(
				registry.Param{Name: "filename", Type: "string", Description: "File name", Required: true},
			),
			Handler: registry.Typed(func(_ context.Context, a filenameArgs) (registry.Result, error) {
				_, ext := splitExt(a.Filename)
				return registry.Result{"extension": strings.TrimLeft(ext, ".")}, nil
			}),
		},
		{
			Name:        "get_mime_type",
			Description: "Guess the MIME type of a file name",
			Parameters: registry.Params(
				registry.Param{Name: "filename", Type: "string", Description: "File name", Required: true},
			),
			Handler: registry.Typed(func(_ context.Context, a filenameArgs) (registry.Result, error) {
				mt := guessMIMEType(a.Filename)
				if mt == "" {
					mt = "unknown"
				}
				return registry.Result{"mime_type": mt}, nil
			}),
		},
		{
			Name:        "parse_path",
			Description: "Split a path into its components",
			Parameters: registry.Params(
				registry.Param{Name: "path", Type: "string", Description: "Path to parse", Required: true},
			),
			Handler: registry.Typed(func(_ context.Context, a pathArgs) (registry.Result, error) {
				dir, base := splitPath(a.Path)
				stem, _ := splitExt(base)
				_, ext := splitExt(a.Path)
				return registry.Result{
					"dirname":     dir,
					"basename":    base,
					"filename":    stem,
					"extension":   strings.TrimLeft(ext, "."),
					"is_absolute": strings.HasPrefix(a.Path, "/"),
				}, nil
			}),
		},
		{
			Name:        "join_path",
			Description: "Join path segments into one path",
			Parameters: registry.Params(
				registry.Param{Name: "parts", Type: "array", Items: "string", Description: "Path segments to join", Required: true},
			),
			Handler: registry.Typed(func(_ context.Context, a joinArgs) (registry.Result, error) {
				if len(a.Parts) == 0 {
					return registry.Result{"error": "Parts array cannot be empty"}, nil
				}
				return registry.Result{"path": joinPath(a.Parts...)}, nil
			}),
		},
		{
			Name:        "normalize_path",
			Description: "Normalize a path (collapse separators, resolve '.' and '..')",
			Parameters: registry.Params(
				registry.Param{Name: "path", Type: "string", Description: "Path to normalize", Required: true},
			),
			Handler: registry.Typed(func(_ context.Context, a pathArgs) (registry.Result, error) {
				return registry.Result{"normalized": normalizePath(a.Path)}, nil
			}),
		},
		{
			Name:        "format_bytes",
			Description: "Format a byte count in human-readable units (B, KB, MB, GB, TB, PB)",
			Parameters: registry.Params(
				registry.Param{Name: "bytes", Type: "number", Description: "Size in bytes", Required: true},
				registry.Param{Name: "units", Type: "string", Description: "Target unit (B, KB, MB, GB, TB, PB) or 'auto' (default: auto)"},
			),
			Handler: registry.Typed(formatBytes),
		},
	}
}

// splitExt splits p into root and extension. The extension starts at the
// last dot of the final component; leading dots of that component do not
// count, so ".bashrc" has no extension.
func splitExt(p string) (string, string) {
	sep := strings.LastIndexByte(p, '/')
	dot := strings.LastIndexByte(p, '.')
	if dot > sep {
		for i := sep + 1; i < dot; i++ {
			if p[i] != '.' {
				return p[:dot], p[dot:]
			}
		}
	}
	return p, ""
}

// splitPath returns the POSIX dirname and basename of p. Trailing slashes
// are stripped from the dirname unless it consists only of slashes.
func splitPath(p string) (string, string) {
	i := strings.LastIndexByte(p, '/') + 1
	head, tail := p[:i], p[i:]
	if head != "" && strings.Trim(head, "/") != "" {
		head = strings.TrimRight(head, "/")
	}
	return head, tail
}

// joinPath joins segments with "/". An absolute segment discards
// everything before it; empty segments add no separator.
func joinPath(parts ...string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		switch {
		case strings.HasPrefix(p, "/"):
			out = p
		case out == "" || strings.HasSuffix(out, "/"):
			out += p
		default:
			out += "/" + p
		}
	}
	return out
}

// normalizePath is path.Clean except that exactly two leading slashes are
// preserved, which POSIX leaves implementation-defined.
func normalizePath(p string) string {
	if strings.HasPrefix(p, "//") && !strings.HasPrefix(p, "///") {
		return "/" + path.Clean(p)
	}
	return path.Clean(p)
}

func formatBytes(_ context.Context, a bytesArgs) (registry.Result, error) {
	value, err := numberValue(a.Bytes)
	if err != nil {
		return nil, err
	}

	if a.Units == "auto" {
		unit := byteUnits[0]
		var scaled any = echoNumber(a.Bytes)
		for i, u := range byteUnits {
			unit = u
			if value < 1024 || i == len(byteUnits)-1 {
				break
			}
			value /= 1024
			scaled = Float(value)
		}
		return registry.Result{
			"formatted": fmt.Sprintf("%.2f %s", value, unit),
			"value":     scaled,
			"unit":      unit,
		}, nil
	}

	unit := strings.ToUpper(a.Units)
	for i, u := range byteUnits {
		if u != unit {
			continue
		}
		v := value / float64(uint64(1)<<(10*i))
		return registry.Result{
			"formatted": fmt.Sprintf("%.2f %s", v, unit),
			"value":     Float(v),
			"unit":      unit,
		}, nil
	}
	return registry.Result{"error": "Invalid unit"}, nil
}

// Compression suffixes and their aliases are peeled off before the type
// lookup, so "logs.tar.gz" reports the archive type.
var (
	suffixAliases = map[string]string{
		".svgz": ".svg.gz",
		".tgz":  ".tar.gz",
		".taz":  ".tar.gz",
		".tz":   ".tar.gz",
		".tbz2": ".tar.bz2",
		".txz":  ".tar.xz",
	}
	encodingSuffixes = map[string]bool{
		".gz": true, ".Z": true, ".bz2": true, ".xz": true, ".br": true,
	}
)

// mimeTypes is consulted before the host's mime tables so results do not
// depend on which mime.types files are installed.
var mimeTypes = map[string]string{
	".7z":    "application/x-7z-compressed",
	".aac":   "audio/aac",
	".avi":   "video/x-msvideo",
	".avif":  "image/avif",
	".bin":   "application/octet-stream",
	".bmp":   "image/bmp",
	".c":     "text/plain",
	".css":   "text/css",
	".csv":   "text/csv",
	".doc":   "application/msword",
	".docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".eml":   "message/rfc822",
	".exe":   "application/octet-stream",
	".flac":  "audio/flac",
	".gif":   "image/gif",
	".h":     "text/plain",
	".htm":   "text/html",
	".html":  "text/html",
	".ico":   "image/vnd.microsoft.icon",
	".ics":   "text/calendar",
	".jpe":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "text/javascript",
	".json":  "application/json",
	".m4a":   "audio/mp4",
	".md":    "text/markdown",
	".mjs":   "text/javascript",
	".mov":   "video/quicktime",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
	".mpeg":  "video/mpeg",
	".mpg":   "video/mpeg",
	".odt":   "application/vnd.oasis.opendocument.text",
	".oga":   "audio/ogg",
	".ogg":   "audio/ogg",
	".opus":  "audio/opus",
	".otf":   "font/otf",
	".pdf":   "application/pdf",
	".png":   "image/png",
	".ppt":   "application/vnd.ms-powerpoint",
	".pptx":  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".ps":    "application/postscript",
	".py":    "text/x-python",
	".rtf":   "application/rtf",
	".sh":    "application/x-sh",
	".svg":   "image/svg+xml",
	".tar":   "application/x-tar",
	".tif":   "image/tiff",
	".tiff":  "image/tiff",
	".ttf":   "font/ttf",
	".txt":   "text/plain",
	".wasm":  "application/wasm",
	".wav":   "audio/x-wav",
	".webm":  "video/webm",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".xls":   "application/vnd.ms-excel",
	".xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xml":   "text/xml",
	".yaml":  "application/yaml",
	".yml":   "application/yaml",
	".zip":   "application/zip",
}

// guessMIMEType returns "" when no type is known for the name.
func guessMIMEType(filename string) string {
	base, ext := splitExt(filename)
	if alias, ok := suffixAliases[ext]; ok {
		base, ext = splitExt(base + alias)
	}
	if encodingSuffixes[ext] || encodingSuffixes[strings.ToLower(ext)] {
		_, ext = splitExt(base)
	}
	if ext == "" {
		return ""
	}

	if mt, ok := mimeTypes[ext]; ok {
		return mt
	}
	if mt, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return mt
	}
	if mt := mime.TypeByExtension(ext); mt != "" {
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			return parsed
		}
		return mt
	}
	return ""
}
