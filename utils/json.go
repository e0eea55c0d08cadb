package utils

import (
	"github.com/goccy/go-json"
)

func MarshalJSON(val any) ([]byte, error) {
	return json.MarshalNoEscape(val)
}

func MarshalJSONIndent(val any, indent string) ([]byte, error) {
	return json.MarshalIndent(val, "", indent)
}

func UnmarshalJSON(data []byte, val any) error {
	return json.UnmarshalNoEscape(data, val)
}
