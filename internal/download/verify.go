package download

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

// VerifyStatus is the outcome of checking a file against a descriptor.
type VerifyStatus int

const (
	VerifyOK VerifyStatus = iota
	VerifySizeMismatch
	VerifyChecksumMismatch
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyOK:
		return "ok"
	case VerifySizeMismatch:
		return "size-mismatch"
	case VerifyChecksumMismatch:
		return "checksum-mismatch"
	}
	return fmt.Sprintf("VerifyStatus(%d)", int(s))
}

// VerifyResult reports what was found on disk. Checksum is only filled
// when one was expected.
type VerifyResult struct {
	Status   VerifyStatus
	Size     int64
	Checksum string
}

// OK reports whether the file matched.
func (r VerifyResult) OK() bool { return r.Status == VerifyOK }

// ValidChecksum reports whether s is empty or a hex SHA-1 or SHA-256 digest.
func ValidChecksum(s string) bool {
	if s == "" {
		return true
	}
	if len(s) != sha1.Size*2 && len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// newDigest picks the hash by digest length. A nil hash means no checksum
// is expected.
func newDigest(checksum string) (hash.Hash, error) {
	switch len(checksum) {
	case 0:
		return nil, nil
	case sha1.Size * 2:
		return sha1.New(), nil
	case sha256.Size * 2:
		return sha256.New(), nil
	}
	return nil, fmt.Errorf("unsupported checksum %q", checksum)
}

// compare checks a transferred size and digest against expectations.
func compare(size int64, sum hash.Hash, wantChecksum string, wantSize int64) VerifyResult {
	res := VerifyResult{Status: VerifyOK, Size: size}
	if wantSize > 0 && size != wantSize {
		res.Status = VerifySizeMismatch
		return res
	}
	if sum != nil {
		res.Checksum = hex.EncodeToString(sum.Sum(nil))
		if !strings.EqualFold(res.Checksum, wantChecksum) {
			res.Status = VerifyChecksumMismatch
		}
	}
	return res
}

// VerifyFile checks the file at path. A size of zero or less skips the size
// check and an empty checksum skips hashing, so with neither only existence
// is checked. Missing or unreadable files return an error.
func VerifyFile(path, checksum string, size int64) (VerifyResult, error) {
	digest, err := newDigest(checksum)
	if err != nil {
		return VerifyResult{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return VerifyResult{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return VerifyResult{}, err
	}
	if info.IsDir() {
		return VerifyResult{}, fmt.Errorf("%s is a directory", path)
	}

	if size > 0 && info.Size() != size {
		return VerifyResult{Status: VerifySizeMismatch, Size: info.Size()}, nil
	}
	if digest == nil {
		return VerifyResult{Status: VerifyOK, Size: info.Size()}, nil
	}

	n, err := io.Copy(digest, f)
	if err != nil {
		return VerifyResult{}, err
	}
	return compare(n, digest, checksum, size), nil
}
