// Package assets parses asset indexes and plans their content-addressed
// downloads.
package assets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
)

// ErrMalformedIndex is returned for asset index documents that cannot be used.
var ErrMalformedIndex = errors.New("malformed asset index")

// Object is one logical asset. Several names may share a hash.
type Object struct {
	Name string
	Hash string
	Size int64
}

// Index is a parsed asset index, objects in document order.
type Index struct {
	Virtual        bool
	MapToResources bool
	Objects        []Object
}

// Legacy reports whether objects must also be laid out under their names.
func (i *Index) Legacy() bool {
	return i.Virtual || i.MapToResources
}

// ObjectPath is the storage path of a hash relative to the assets
// directory: objects/<first two hex chars>/<hash>.
func ObjectPath(hash string) string {
	return path.Join("objects", hash[:2], hash)
}

// ValidHash reports whether h is a lowercase hex SHA-1 digest.
func ValidHash(h string) bool {
	if len(h) != 40 {
		return false
	}
	for _, c := range h {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// ParseIndex streams an asset index. Objects keep the order they appear in
// the document.
func ParseIndex(r io.Reader) (*Index, error) {
	dec := json.NewDecoder(r)
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	idx := &Index{}
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}

		switch key {
		case "virtual":
			err = dec.Decode(&idx.Virtual)
		case "map_to_resources":
			err = dec.Decode(&idx.MapToResources)
		case "objects":
			err = parseObjects(dec, idx)
		default:
			var skip json.RawMessage
			err = dec.Decode(&skip)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedIndex, key, err)
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return idx, nil
}

func parseObjects(dec *json.Decoder, idx *Index) error {
	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	for dec.More() {
		name, err := readKey(dec)
		if err != nil {
			return err
		}
		var obj struct {
			Hash string `json:"hash"`
			Size int64  `json:"size"`
		}
		if err := dec.Decode(&obj); err != nil {
			return fmt.Errorf("object %q: %v", name, err)
		}
		if !ValidHash(obj.Hash) {
			return fmt.Errorf("object %q: invalid hash %q", name, obj.Hash)
		}
		idx.Objects = append(idx.Objects, Object{Name: name, Hash: obj.Hash, Size: obj.Size})
	}
	return expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("%w: expected %q, got %v", ErrMalformedIndex, want, tok)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("%w: expected key, got %v", ErrMalformedIndex, tok)
	}
	return key, nil
}
