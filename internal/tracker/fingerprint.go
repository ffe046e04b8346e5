package tracker

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

const StrategyChecksum = "checksum"
const StrategyDeviceAndInode = "deviceAndInode"

const DefaultFingerprintLines = 1

var gzipMagic = []byte{0x1f, 0x8b}

// Fingerprinter computes a rotation-stable identity for a file. The checksum
// strategy hashes the first N lines after skipping IgnoredHeaderBytes; the
// deviceAndInode strategy uses the OS file identity.
type Fingerprinter struct {
	Strategy           string
	Lines              int
	IgnoredHeaderBytes int
}

func DefaultFingerprinter() Fingerprinter {
	return Fingerprinter{
		Strategy: StrategyChecksum,
		Lines:    DefaultFingerprintLines,
	}
}

func (f Fingerprinter) Validate() error {
	switch f.Strategy {
	case StrategyChecksum:
		if f.Lines <= 0 {
			return errors.New("fingerprint lines must be > 0 for checksum strategy")
		}
		if f.IgnoredHeaderBytes < 0 {
			return errors.New("ignored header bytes must be >= 0")
		}
	case StrategyDeviceAndInode:
	default:
		return errors.New("unsupported fingerprint strategy: " + f.Strategy)
	}
	return nil
}

// Identify computes the fingerprint for the file at path.
// Returns NotEnoughLinesError when the file is too short to fingerprint yet.
func (f Fingerprinter) Identify(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open file: %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	return f.IdentifyFile(file)
}

// IdentifyFile computes the fingerprint from an already-open file handle.
// The handle's read position is not restored.
func (f Fingerprinter) IdentifyFile(file *os.File) (string, error) {
	switch f.Strategy {
	case StrategyChecksum:
		return f.checksumFirstLines(file)
	case StrategyDeviceAndInode:
		info, err := file.Stat()
		if err != nil {
			return "", err
		}
		return GetFileID(info)
	default:
		return "", errors.New("unsupported fingerprint strategy: " + f.Strategy)
	}
}

// checksumFirstLines hashes from the start of the (possibly gzip-compressed)
// content, after skipping the configured header bytes, up to and including the
// N-th newline. If EOF occurs before N newlines, returns NotEnoughLinesError.
func (f Fingerprinter) checksumFirstLines(file *os.File) (string, error) {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	reader, err := contentReader(file)
	if err != nil {
		return "", err
	}

	if err := skipBytes(reader, f.IgnoredHeaderBytes); err != nil {
		if err == io.EOF {
			return "", &NotEnoughLinesError{Expected: f.Lines, Actual: 0}
		}
		return "", err
	}

	hash := sha256.New()
	found := 0
	for found < f.Lines {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			hash.Write(line)
		}
		if err != nil {
			if err == io.EOF {
				return "", &NotEnoughLinesError{Expected: f.Lines, Actual: found}
			}
			return "", err
		}
		found++
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

// contentReader returns a reader over the file's logical content. Gzip files
// (detected by magic header) are fingerprinted over their uncompressed leading
// bytes; when the gzip header cannot be decoded the raw bytes are used instead.
func contentReader(file *os.File) (*bufio.Reader, error) {
	br := bufio.NewReader(file)
	magic, err := br.Peek(len(gzipMagic))
	if err != nil || !bytes.Equal(magic, gzipMagic) {
		// Too short for a magic header, or plain content.
		return br, nil
	}
	gz, err := gzip.NewReader(br)
	if err != nil {
		// Looked like gzip but isn't decodable; fall back to the raw bytes.
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return bufio.NewReader(file), nil
	}
	return bufio.NewReader(gz), nil
}

// skipBytes discards n bytes from the reader. The content may be compressed,
// so the underlying file cannot simply be seeked.
func skipBytes(r *bufio.Reader, n int) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, r, int64(n))
	return err
}

// GetFileIDFromPath computes the device+inode identity for the file at path.
func GetFileIDFromPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	return GetFileID(info)
}
