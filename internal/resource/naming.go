package resource

import (
	"path/filepath"
	"strings"

	"image-converter/internal/model"
)

// DefaultOutputName is suggested when there is no input to derive from.
const DefaultOutputName = "out.png"

var replacer = strings.NewReplacer(
	":", "_",
	"/", "_",
	"<", "_",
	">", "_",
	"'", "_",
	"\\", "_",
	"|", "_",
	"?", "_",
	"*", "_",
	" ", "_",
)

// MakeValid normalizes names into filesystem-safe filenames.
func MakeValid(name string) string {
	return replacer.Replace(name)
}

// DefaultOutput suggests a PNG path next to the input, named after it.
func DefaultOutput(input model.Handle) model.Handle {
	if input.IsZero() {
		return DefaultOutputName
	}
	path := string(input)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	base = MakeValid(base)
	if base == "" || base == "." {
		return model.Handle(filepath.Join(filepath.Dir(path), DefaultOutputName))
	}
	return model.Handle(filepath.Join(filepath.Dir(path), base+".png"))
}
