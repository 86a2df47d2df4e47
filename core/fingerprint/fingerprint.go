// Package fingerprint derives a content identity for audio payloads. It
// prefers an acoustic fingerprint from the external fpcalc binary, which is
// stable across re-encoding, and falls back to a SHA-256 of the raw bytes so
// every upload gets some identity even without the tool installed.
package fingerprint

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"EchoVault/logger"
)

// Method tags how a fingerprint value was produced.
type Method string

const (
	MethodAcoustic Method = "acoustic"
	MethodHash     Method = "hash"
)

// HashPrefix marks hash-derived fingerprint values so they can never collide
// with acoustic ones.
const HashPrefix = "HASH:"

// fpcalcTimeout bounds a single fpcalc invocation.
const fpcalcTimeout = 30 * time.Second

// Fingerprint is a content identity. Two fingerprints denote the same
// recording iff their Values are equal; Method is informational.
type Fingerprint struct {
	Value  string `json:"value"`
	Method Method `json:"method"`
}

var errNoFingerprintLine = errors.New("fpcalc output contained no FINGERPRINT line")

// Generator produces fingerprints using the configured fpcalc binary.
type Generator struct {
	FpcalcPath string
}

// NewGenerator creates a Generator. An empty path disables the acoustic
// attempt entirely.
func NewGenerator(fpcalcPath string) *Generator {
	return &Generator{FpcalcPath: fpcalcPath}
}

// Generate derives a fingerprint for the payload. It never fails: any
// problem with the acoustic tool degrades to the hash fallback, because a
// weaker identity must not sink an otherwise valid upload.
func (g *Generator) Generate(ctx context.Context, data []byte) Fingerprint {
	if g.FpcalcPath != "" {
		if value, err := g.acoustic(ctx, data); err == nil {
			return Fingerprint{Value: value, Method: MethodAcoustic}
		} else if !errors.Is(err, exec.ErrNotFound) {
			// Missing fpcalc is a normal condition and not worth logging
			// on every upload; anything else is.
			logger.Warn("acoustic fingerprinting failed, falling back to hash",
				logger.ErrorField(err))
		}
	}

	sum := sha256.Sum256(data)
	return Fingerprint{
		Value:  HashPrefix + hex.EncodeToString(sum[:]),
		Method: MethodHash,
	}
}

// acoustic writes the payload to a transient file, runs fpcalc against it
// and parses the FINGERPRINT line. The temp file is removed on every path.
func (g *Generator) acoustic(ctx context.Context, data []byte) (string, error) {
	if _, err := exec.LookPath(g.FpcalcPath); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "echovault-fp-*.audio")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithTimeout(ctx, fpcalcTimeout)
	defer cancel()

	out, err := exec.CommandContext(runCtx, g.FpcalcPath, tmpName).Output()
	if err != nil {
		return "", err
	}

	return parseFpcalcOutput(out)
}

// parseFpcalcOutput extracts the fingerprint from fpcalc's key=value output.
func parseFpcalcOutput(out []byte) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if value, ok := strings.CutPrefix(line, "FINGERPRINT="); ok && value != "" {
			return value, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errNoFingerprintLine
}
