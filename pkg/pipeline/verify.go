package pipeline

import (
	"crypto/md5"  //nolint:gosec // catalog digests are md5 for older entries
	"crypto/sha1" //nolint:gosec // catalog digests are sha1 for older entries
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/blackarch/wordlistctl/pkg/errors"
)

// SkipChecksum is the catalog sentinel meaning "treat as verified".
const SkipChecksum = "SKIP"

// Verdict is the outcome of an integrity check.
type Verdict int

const (
	VerdictNotChecked Verdict = iota
	VerdictVerified
	VerdictMismatch
)

func (v Verdict) String() string {
	switch v {
	case VerdictVerified:
		return "verified"
	case VerdictMismatch:
		return "mismatch"
	default:
		return "not-checked"
	}
}

// hasherFor picks the digest algorithm from the hex length of want.
func hasherFor(want string) (hash.Hash, error) {
	if _, err := hex.DecodeString(want); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidChecksum, "%q is not hex", want)
	}
	switch len(want) {
	case md5.Size * 2:
		return md5.New(), nil //nolint:gosec
	case sha1.Size * 2:
		return sha1.New(), nil //nolint:gosec
	case sha256.Size * 2:
		return sha256.New(), nil
	case sha512.Size * 2:
		return sha512.New(), nil
	default:
		return nil, errors.Wrapf(errors.ErrInvalidChecksum, "unsupported digest length %d", len(want))
	}
}

// Verify hashes the file at path and compares it with checksum. An empty
// checksum is not checked; the SKIP sentinel counts as verified. Malformed
// checksums return ErrInvalidChecksum.
func Verify(path, checksum string) (Verdict, error) {
	want := strings.ToLower(strings.TrimSpace(checksum))
	if want == "" {
		return VerdictNotChecked, nil
	}
	if strings.EqualFold(want, SkipChecksum) {
		return VerdictVerified, nil
	}

	h, err := hasherFor(want)
	if err != nil {
		return VerdictNotChecked, err
	}

	f, err := os.Open(path)
	if err != nil {
		return VerdictNotChecked, errors.Wrap(err, "open for checksum")
	}
	defer func() { _ = f.Close() }()

	if _, err := io.Copy(h, f); err != nil {
		return VerdictNotChecked, errors.Wrap(err, "hashing")
	}
	if hex.EncodeToString(h.Sum(nil)) != want {
		return VerdictMismatch, nil
	}
	return VerdictVerified, nil
}
