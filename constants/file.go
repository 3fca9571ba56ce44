package constants

import "strings"

// RivletExtensions holds the extensions read as rivlet documents.
var RivletExtensions = map[string]struct{}{
	"json": {},
}

// ImageExtensions holds the default image extensions sent to LayoutLMv2 when no file type is given.
var ImageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"tif":  {},
	"tiff": {},
}

// HEICExtensions need converting to PNG before upload.
var HEICExtensions = map[string]struct{}{
	"heic": {},
	"heif": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
